package normalizer

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
)

// Fields indexes decoded schema fields by name. Layout is resolved by name,
// never by position.
type Fields map[string]model.EncodedField

// decodedItem matches one entry of an indexer's decoded data. Some indexers
// nest the typed value one level down ({"value":{"name","type","value"}}).
type decodedItem struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// DecodeFields parses the JSON list of name/type/value triples.
func DecodeFields(raw string) (Fields, error) {
	if strings.TrimSpace(raw) == "" {
		return Fields{}, nil
	}
	var items []decodedItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	out := make(Fields, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		f := model.EncodedField{Name: it.Name, Type: it.Type, Value: it.Value}
		var inner decodedItem
		if len(it.Value) > 0 && it.Value[0] == '{' && json.Unmarshal(it.Value, &inner) == nil && inner.Name == it.Name {
			f.Value = inner.Value
			if f.Type == "" {
				f.Type = inner.Type
			}
		}
		out[f.Name] = f
	}
	return out, nil
}

// String returns the named string field, or def when it is missing, null or empty.
func (f Fields) String(name, def string) (string, error) {
	field, ok := f[name]
	if !ok || isNull(field.Value) {
		return def, nil
	}
	var s string
	if err := json.Unmarshal(field.Value, &s); err != nil {
		return "", fmt.Errorf("field %s: expected string: %w", name, err)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

// Strings returns the named string array field; missing yields an empty slice.
func (f Fields) Strings(name string) ([]string, error) {
	field, ok := f[name]
	if !ok || isNull(field.Value) {
		return []string{}, nil
	}
	var ss []string
	if err := json.Unmarshal(field.Value, &ss); err != nil {
		return nil, fmt.Errorf("field %s: expected string array: %w", name, err)
	}
	if ss == nil {
		ss = []string{}
	}
	return ss, nil
}

// ByteSlices returns the named bytes[] field. Elements are 0x-hex; anything
// that is not valid hex is kept as its literal bytes.
func (f Fields) ByteSlices(name string) ([][]byte, error) {
	ss, err := f.Strings(name)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(ss))
	for _, s := range ss {
		out = append(out, decodeHexOrRaw(s))
	}
	return out, nil
}

// Int returns the named integer field. Numbers, numeral strings, 0x-hex strings
// and {"type":"BigNumber","hex":"0x.."} objects are accepted. ok is false when
// the field is missing or cannot be read as an int64.
func (f Fields) Int(name string) (int64, bool) {
	field, exists := f[name]
	if !exists || isNull(field.Value) {
		return 0, false
	}
	n, err := ParseNumeral(field.Value)
	if err != nil || !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}

// ParseNumeral reads an integer from any of the encodings indexers use for
// uint256 values.
func ParseNumeral(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty numeral")
	}
	switch raw[0] {
	case '{':
		var bn struct {
			Type string `json:"type"`
			Hex  string `json:"hex"`
		}
		if err := json.Unmarshal(raw, &bn); err != nil {
			return nil, fmt.Errorf("numeral object: %w", err)
		}
		return parseIntString(bn.Hex)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("numeral string: %w", err)
		}
		return parseIntString(s)
	default:
		return parseIntString(string(raw))
	}
}

func parseIntString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid numeral %q", s)
	}
	return n, nil
}

func decodeHexOrRaw(s string) []byte {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if b, err := hex.DecodeString(s[2:]); err == nil {
			return b
		}
	}
	return []byte(s)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
