package ports

// Conn is the transport side of one client connection
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(data []byte) error
	Close() error
}
