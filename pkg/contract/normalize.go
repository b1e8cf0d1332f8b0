package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NormalizeJSON removes every explicit null member from a JSON document so
// that "null" and "absent" collapse to the same state before decoding.
// Nulls inside arrays are kept: an array element has no "absent" form.
func NormalizeJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out, err := json.Marshal(dropNulls(v))
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

func dropNulls(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			if child == nil {
				delete(t, k)
				continue
			}
			t[k] = dropNulls(child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = dropNulls(child)
		}
		return t
	default:
		return v
	}
}

// Decode normalizes data and decodes it into v.
// Unknown fields are ignored; only recognized fields reach the contract.
func Decode(data []byte, v interface{}) error {
	norm, err := NormalizeJSON(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}
