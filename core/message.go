package core

import "fmt"

// MessageKind is the numeric discriminant carried in every message header.
type MessageKind int32

const (
	KindUUIDValidation MessageKind = 1
	KindClientAuth     MessageKind = 2
	KindProfile        MessageKind = 3
)

// TypeName returns the schema type name for k, or "" for unknown kinds.
func (k MessageKind) TypeName() string {
	switch k {
	case KindUUIDValidation:
		return "UUIDValidation"
	case KindClientAuth:
		return "ClientAuth"
	case KindProfile:
		return "Profile"
	default:
		return ""
	}
}

func (k MessageKind) String() string {
	if name := k.TypeName(); name != "" {
		return name
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// Message is one variant of the wire protocol.
type Message interface {
	Kind() MessageKind
}

// UUIDValidation carries the per-connection challenge to the client.
type UUIDValidation struct {
	UUID string
}

func (UUIDValidation) Kind() MessageKind { return KindUUIDValidation }

// ClientAuth is the client's signed identity claim. Nothing in it is trusted
// until the signature has been checked.
type ClientAuth struct {
	Wallet string
	UUID   string
	Nonce  string
	Sign   string // 0x-prefixed hex, 65 bytes
}

func (ClientAuth) Kind() MessageKind { return KindClientAuth }

// SignedMessage returns the exact string the client must have signed.
func (c ClientAuth) SignedMessage() string {
	return SignedMessage(c.Wallet, c.UUID, c.Nonce)
}

// SignedMessage builds the composite `wallet:uuid:nonce` string.
func SignedMessage(wallet, uuid, nonce string) string {
	return wallet + ":" + uuid + ":" + nonce
}

// Profile reports the remaining energy for the authenticated wallet.
type Profile struct {
	Energies int32
}

func (Profile) Kind() MessageKind { return KindProfile }

// UnknownMessage is a well-formed message whose discriminant has no variant.
type UnknownMessage struct {
	Type MessageKind
}

func (u UnknownMessage) Kind() MessageKind { return u.Type }
