package codec

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/energygate/core"
)

func newTestCodec(t *testing.T) *ProtobufCodec {
	t.Helper()
	schema, err := DefaultSchema()
	require.NoError(t, err)
	return NewProtobufCodec(schema)
}

func TestEncodeMatchesProtobufWire(t *testing.T) {
	c := newTestCodec(t)

	data, err := c.Encode(core.Profile{Energies: 100})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x03, 0x10, 0x64}, data)

	data, err = c.Encode(core.UUIDValidation{UUID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x01, 0x12, 0x02, 'c', '1'}, data)
}

func TestDecodeVariants(t *testing.T) {
	c := newTestCodec(t)

	claim := core.ClientAuth{Wallet: "0xAbC", UUID: "c1", Nonce: "n1", Sign: "0xdeadbeef"}
	tests := []core.Message{
		core.UUIDValidation{UUID: "4f0c1c2e-7a3b-4f51-9a7e-2f4b7f0d9c11"},
		claim,
		core.Profile{Energies: 0},
		core.Profile{Energies: 42},
	}

	for _, msg := range tests {
		t.Run(msg.Kind().String(), func(t *testing.T) {
			data, err := c.Encode(msg)
			require.NoError(t, err)

			kind, err := c.DecodeHeader(data)
			require.NoError(t, err)
			assert.Equal(t, msg.Kind(), kind)

			got, err := c.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	c := newTestCodec(t)

	got, err := c.Decode([]byte{0x08, 0x07})
	require.NoError(t, err)
	assert.Equal(t, core.UnknownMessage{Type: 7}, got)

	got, err = c.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, core.UnknownMessage{Type: 0}, got)
}

func TestDecodeTruncated(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.DecodeHeader([]byte{0x12, 0x05, 'a'})
	assert.ErrorIs(t, err, core.ErrDecode)

	_, err = c.Decode([]byte{0x08, 0x02, 0x12, 0x10, 'x'})
	assert.ErrorIs(t, err, core.ErrDecode)

	_, err = c.DecodeFields([]byte{0x08, 0x02}, "Nope")
	assert.ErrorIs(t, err, core.ErrDecode)
}

func TestDecodeRandomBytesNeverPanics(t *testing.T) {
	c := newTestCodec(t)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(64))
		rng.Read(buf)
		assert.NotPanics(t, func() {
			_, _ = c.Decode(buf)
		})
	}
}

func TestEncodeFieldsValidation(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name     string
		typeName string
		fields   map[string]any
	}{
		{"unknown type", "Nope", map[string]any{"type": 1}},
		{"missing field", "Profile", map[string]any{"type": 3}},
		{"unknown field", "Profile", map[string]any{"type": 3, "energies": 1, "extra": true}},
		{"wrong kind", "Profile", map[string]any{"type": 3, "energies": "lots"}},
		{"int32 overflow", "Profile", map[string]any{"type": 3, "energies": int64(1) << 40}},
		{"string expected", "UUIDValidation", map[string]any{"type": 1, "uuid": 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.EncodeFields(tt.typeName, tt.fields)
			assert.ErrorIs(t, err, core.ErrSchemaValidation)
		})
	}
}

func TestEncodeFieldsAndDecodeFields(t *testing.T) {
	c := newTestCodec(t)

	data, err := c.EncodeFields("Profile", map[string]any{"type": 3, "energies": 7})
	require.NoError(t, err)

	fields, err := c.DecodeFields(data, "Profile")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": int32(3), "energies": int32(7)}, fields)
}

func TestEncodeUnsupportedMessage(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Encode(core.UnknownMessage{Type: 9})
	assert.ErrorIs(t, err, core.ErrSchemaValidation)
}

func TestBytesSignSchema(t *testing.T) {
	text := strings.Replace(string(embeddedSchema),
		`name: "sign" number: 5 label: LABEL_OPTIONAL type: TYPE_STRING`,
		`name: "sign" number: 5 label: LABEL_OPTIONAL type: TYPE_BYTES`, 1)
	schema, err := LoadSchema([]byte(text))
	require.NoError(t, err)
	c := NewProtobufCodec(schema)

	claim := core.ClientAuth{Wallet: "0xabc", UUID: "c1", Nonce: "n1", Sign: "0xdeadbeef"}
	data, err := c.Encode(claim)
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, claim, got)

	claim.Sign = "not-hex"
	_, err = c.Encode(claim)
	assert.ErrorIs(t, err, core.ErrSchemaValidation)
}

func TestLoadSchemaFailures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"garbage", "file {"},
		{"missing variant", strings.Replace(string(embeddedSchema), `name: "Profile"`, `name: "Account"`, 1)},
		{"missing header", strings.Replace(string(embeddedSchema), `name: "MessageType"`, `name: "Header"`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSchema([]byte(tt.text))
			assert.ErrorIs(t, err, core.ErrSchemaLoad)
		})
	}

	t.Run("discriminant mismatch", func(t *testing.T) {
		text := strings.Replace(string(embeddedSchema),
			`name: "Profile"
    field { name: "type" number: 1 label: LABEL_OPTIONAL type: TYPE_INT32`,
			`name: "Profile"
    field { name: "type" number: 1 label: LABEL_OPTIONAL type: TYPE_STRING`, 1)
		_, err := LoadSchema([]byte(text))
		assert.ErrorIs(t, err, core.ErrSchemaLoad)
	})
}

func TestLoadSchemaFile(t *testing.T) {
	_, err := LoadSchemaFile(filepath.Join(t.TempDir(), "missing.pbtxt"))
	assert.ErrorIs(t, err, core.ErrSchemaLoad)

	path := filepath.Join(t.TempDir(), "server.pbtxt")
	require.NoError(t, os.WriteFile(path, embeddedSchema, 0o600))
	schema, err := LoadSchemaFile(path)
	require.NoError(t, err)

	_, ok := schema.Lookup("ClientAuth")
	assert.True(t, ok)
}
