package codec

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Codec encodes response payloads and decodes request bodies
type Codec interface {
	// Encode encodes a value to bytes
	Encode(v any) ([]byte, error)

	// Decode decodes bytes to a value
	Decode(data []byte, v any) error

	// Name returns the codec name
	Name() string

	// ContentType is the media type written for encoded payloads
	ContentType() string
}

// Shared codec instances; both are stateless.
var (
	JSON     Codec = &JSONCodec{}
	Protobuf Codec = &ProtobufCodec{}
)

// ForContentType returns the codec for a Content-Type header value.
// Parameters such as charset are ignored; an empty value selects JSON.
func ForContentType(contentType string) (Codec, error) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "", "application/json":
		return JSON, nil
	case "application/x-protobuf", "application/protobuf":
		return Protobuf, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedCodec, "content type %q", contentType)
	}
}

// JSONCodec implements JSON encoding/decoding
type JSONCodec struct{}

// Encode marshals v. A nil value encodes as an empty object.
func (c *JSONCodec) Encode(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "json encode")
	}
	return data, nil
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return errors.Wrap(json.Unmarshal(data, v), "json decode")
}

func (c *JSONCodec) Name() string {
	return "json"
}

func (c *JSONCodec) ContentType() string {
	return "application/json"
}
