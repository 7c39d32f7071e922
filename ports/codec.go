package ports

import "github.com/layer-3/energygate/core"

// Codec converts between protocol messages and their binary wire form
type Codec interface {
	Encode(msg core.Message) ([]byte, error)
	DecodeHeader(data []byte) (core.MessageKind, error)
	Decode(data []byte) (core.Message, error)
}
