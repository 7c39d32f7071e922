package codec

import (
	_ "embed"
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/layer-3/energygate/core"
)

//go:embed schema/server.pbtxt
var embeddedSchema []byte

const (
	// PackageName is the protobuf package holding the protocol messages.
	PackageName = "server"

	// HeaderTypeName is the message every payload can be decoded as.
	HeaderTypeName = "MessageType"

	// HeaderField carries the numeric discriminant.
	HeaderField = "type"
)

// Schema is the immutable set of message descriptors the codec works against.
type Schema struct {
	header protoreflect.MessageDescriptor
	types  map[string]protoreflect.MessageDescriptor
}

// DefaultSchema loads the schema compiled into the binary.
func DefaultSchema() (*Schema, error) {
	return LoadSchema(embeddedSchema)
}

// LoadSchemaFile loads a text-format FileDescriptorSet from path.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", core.ErrSchemaLoad, path, err)
	}
	return LoadSchema(data)
}

// LoadSchema parses a text-format FileDescriptorSet and checks that it defines
// the header and every protocol variant with a compatible discriminant field.
func LoadSchema(text []byte) (*Schema, error) {
	var set descriptorpb.FileDescriptorSet
	if err := prototext.Unmarshal(text, &set); err != nil {
		return nil, fmt.Errorf("%w: parse descriptor set: %w", core.ErrSchemaLoad, err)
	}

	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("%w: build descriptors: %w", core.ErrSchemaLoad, err)
	}

	lookup := func(name string) (protoreflect.MessageDescriptor, error) {
		d, err := files.FindDescriptorByName(protoreflect.FullName(PackageName + "." + name))
		if err != nil {
			return nil, fmt.Errorf("%w: type %s: %w", core.ErrSchemaLoad, name, err)
		}
		md, ok := d.(protoreflect.MessageDescriptor)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a message", core.ErrSchemaLoad, name)
		}
		return md, nil
	}

	header, err := lookup(HeaderTypeName)
	if err != nil {
		return nil, err
	}
	headerField := header.Fields().ByName(HeaderField)
	if headerField == nil || headerField.Kind() != protoreflect.Int32Kind {
		return nil, fmt.Errorf("%w: %s.%s must be int32", core.ErrSchemaLoad, HeaderTypeName, HeaderField)
	}

	schema := &Schema{
		header: header,
		types:  map[string]protoreflect.MessageDescriptor{HeaderTypeName: header},
	}

	for _, kind := range []core.MessageKind{core.KindUUIDValidation, core.KindClientAuth, core.KindProfile} {
		md, err := lookup(kind.TypeName())
		if err != nil {
			return nil, err
		}
		fd := md.Fields().ByName(HeaderField)
		if fd == nil || fd.Number() != headerField.Number() || fd.Kind() != headerField.Kind() {
			return nil, fmt.Errorf("%w: %s does not share the %s header", core.ErrSchemaLoad, kind.TypeName(), HeaderTypeName)
		}
		schema.types[kind.TypeName()] = md
	}

	return schema, nil
}

// Lookup returns the descriptor for a message type name.
func (s *Schema) Lookup(typeName string) (protoreflect.MessageDescriptor, bool) {
	md, ok := s.types[typeName]
	return md, ok
}
