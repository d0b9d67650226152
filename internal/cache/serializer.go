package cache

import (
	"bytes"
	"encoding/json"

	"github.com/LavishGent/backpressure/internal/types"
)

// JSONSerializer encodes values for shared stores. Numbers decoded into
// interface values become json.Number, so large integers keep their digits.
type JSONSerializer struct{}

func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Marshal encodes v without HTML escaping and without a trailing newline.
func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (s *JSONSerializer) Unmarshal(data []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dest)
}

var _ types.Serializer = (*JSONSerializer)(nil)
