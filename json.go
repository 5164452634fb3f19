package arena

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// TagJSON encodes v, which must encode to an object, and prepends a "kind" field to it.
func TagJSON(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("cannot tag non-object %T", v)
	}
	kindJSON, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(kindJSON) + 9)
	buf.WriteString(`{"kind":`)
	buf.Write(kindJSON)
	if bytes.Equal(body, []byte("{}")) {
		buf.WriteByte('}')
	} else {
		buf.WriteByte(',')
		buf.Write(body[1:])
	}
	return buf.Bytes(), nil
}
