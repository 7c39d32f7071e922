package codec

import (
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

// ProtobufCodec encodes protocol messages as protobuf against a runtime schema
type ProtobufCodec struct {
	schema *Schema
}

var _ ports.Codec = (*ProtobufCodec)(nil)

// NewProtobufCodec creates a codec bound to schema
func NewProtobufCodec(schema *Schema) *ProtobufCodec {
	return &ProtobufCodec{schema: schema}
}

// EncodeFields validates fields against typeName and returns the wire bytes.
// Every declared field must be present.
func (c *ProtobufCodec) EncodeFields(typeName string, fields map[string]any) ([]byte, error) {
	md, ok := c.schema.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", core.ErrSchemaValidation, typeName)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if md.Fields().ByName(protoreflect.Name(name)) == nil {
			return nil, fmt.Errorf("%w: %s has no field %q", core.ErrSchemaValidation, typeName, name)
		}
	}

	msg := dynamicpb.NewMessage(md)
	fds := md.Fields()
	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		raw, ok := fields[string(fd.Name())]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is required", core.ErrSchemaValidation, typeName, fd.Name())
		}
		v, err := toValue(fd, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", core.ErrSchemaValidation, typeName, fd.Name(), err)
		}
		msg.Set(fd, v)
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", core.ErrSchemaValidation, typeName, err)
	}
	return data, nil
}

// DecodeHeader reads only the shared discriminant.
func (c *ProtobufCodec) DecodeHeader(data []byte) (core.MessageKind, error) {
	msg := dynamicpb.NewMessage(c.schema.header)
	if err := (proto.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, msg); err != nil {
		return 0, fmt.Errorf("%w: header: %v", core.ErrDecode, err)
	}
	fd := c.schema.header.Fields().ByName(HeaderField)
	return core.MessageKind(msg.Get(fd).Int()), nil
}

// DecodeFields decodes data as typeName and returns its populated fields.
func (c *ProtobufCodec) DecodeFields(data []byte, typeName string) (map[string]any, error) {
	md, ok := c.schema.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", core.ErrDecode, typeName)
	}

	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrDecode, typeName, err)
	}

	fields := make(map[string]any, md.Fields().Len())
	fds := md.Fields()
	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		fields[string(fd.Name())] = msg.Get(fd).Interface()
	}
	return fields, nil
}

// Encode encodes one protocol variant.
func (c *ProtobufCodec) Encode(msg core.Message) ([]byte, error) {
	switch m := msg.(type) {
	case core.UUIDValidation:
		return c.EncodeFields(m.Kind().TypeName(), map[string]any{
			"type": int32(m.Kind()),
			"uuid": m.UUID,
		})
	case core.ClientAuth:
		sign, err := c.signValue(m.Sign)
		if err != nil {
			return nil, err
		}
		return c.EncodeFields(m.Kind().TypeName(), map[string]any{
			"type":   int32(m.Kind()),
			"wallet": m.Wallet,
			"uuid":   m.UUID,
			"nonce":  m.Nonce,
			"sign":   sign,
		})
	case core.Profile:
		return c.EncodeFields(m.Kind().TypeName(), map[string]any{
			"type":     int32(m.Kind()),
			"energies": m.Energies,
		})
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", core.ErrSchemaValidation, msg)
	}
}

// Decode dispatches on the header and decodes the matching variant. A
// well-formed message of an unknown kind yields core.UnknownMessage.
func (c *ProtobufCodec) Decode(data []byte) (core.Message, error) {
	kind, err := c.DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	typeName := kind.TypeName()
	if typeName == "" {
		return core.UnknownMessage{Type: kind}, nil
	}

	fields, err := c.DecodeFields(data, typeName)
	if err != nil {
		return nil, err
	}

	switch kind {
	case core.KindUUIDValidation:
		return core.UUIDValidation{UUID: stringField(fields, "uuid")}, nil
	case core.KindClientAuth:
		return core.ClientAuth{
			Wallet: stringField(fields, "wallet"),
			UUID:   stringField(fields, "uuid"),
			Nonce:  stringField(fields, "nonce"),
			Sign:   stringField(fields, "sign"),
		}, nil
	default:
		energies, _ := fields["energies"].(int32)
		return core.Profile{Energies: energies}, nil
	}
}

// signValue adapts the hex signature to a schema that declares sign as bytes.
func (c *ProtobufCodec) signValue(sign string) (any, error) {
	md, _ := c.schema.Lookup(core.KindClientAuth.TypeName())
	fd := md.Fields().ByName("sign")
	if fd == nil || fd.Kind() != protoreflect.BytesKind {
		return sign, nil
	}
	raw, err := hexutil.Decode(sign)
	if err != nil {
		return nil, fmt.Errorf("%w: ClientAuth.sign: %v", core.ErrSchemaValidation, err)
	}
	return raw, nil
}

func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []byte:
		return hexutil.Encode(v)
	default:
		return ""
	}
}

func toValue(fd protoreflect.FieldDescriptor, raw any) (protoreflect.Value, error) {
	if fd.IsList() || fd.IsMap() {
		return protoreflect.Value{}, fmt.Errorf("repeated and map fields are not supported")
	}

	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, ok := asInt64(raw)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected integer, got %T", raw)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return protoreflect.Value{}, fmt.Errorf("%d overflows int32", n)
		}
		return protoreflect.ValueOfInt32(int32(n)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, ok := asInt64(raw)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected integer, got %T", raw)
		}
		return protoreflect.ValueOfInt64(n), nil
	case protoreflect.StringKind:
		s, ok := raw.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected string, got %T", raw)
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		b, ok := raw.([]byte)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected bytes, got %T", raw)
		}
		return protoreflect.ValueOfBytes(b), nil
	case protoreflect.BoolKind:
		b, ok := raw.(bool)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected bool, got %T", raw)
		}
		return protoreflect.ValueOfBool(b), nil
	default:
		return protoreflect.Value{}, fmt.Errorf("unsupported kind %s", fd.Kind())
	}
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case core.MessageKind:
		return int64(v), true
	default:
		return 0, false
	}
}
