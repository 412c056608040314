package memdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// marshalCanonical produces a canonical JSON encoding of document
// data, used both for storage and for change detection between query
// evaluations. Two semantically equal documents always encode to the
// same bytes:
//
//   - Object keys are sorted by UTF-16 code units.
//   - Strings are NFC normalized at the serialization boundary.
//   - No HTML escaping (<, >, & pass through).
//   - Integral numbers encode without a fraction; other floats use the
//     shortest round-trip form.
//
// Unlike an event-log IR, document data may carry nulls and floats;
// both are accepted here.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return marshalCanonicalString(val)
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case float32:
		return marshalCanonicalFloat(float64(val))
	case float64:
		return marshalCanonicalFloat(val)
	case json.Number:
		return []byte(val.String()), nil
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported document value type: %T", v)
	}
}

func marshalCanonicalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float in document data: %v", f)
	}
	if f == float64(int64(f)) {
		return strconv.AppendInt(nil, int64(f), 10), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalCanonicalString encodes with NFC normalization and without
// HTML escaping.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline, remove it.
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sortUTF16(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyData, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", k, err)
		}
		buf.Write(keyData)
		buf.WriteByte(':')

		valData, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		buf.Write(valData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortUTF16 sorts keys by their UTF-16 code unit sequences, the
// canonical-JSON key order.
func sortUTF16(keys []string) {
	slices.SortFunc(keys, func(a, b string) int {
		ua := utf16.Encode([]rune(a))
		ub := utf16.Encode([]rune(b))
		return slices.Compare(ua, ub)
	})
}

// unmarshalData parses stored canonical JSON back into document data.
// Numbers decode via json.Number first so integers survive without
// float64 precision loss; integral values come back as int64.
func unmarshalData(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("unmarshal document data: %w", err)
	}
	return convertNumbers(m).(map[string]any), nil
}

// convertNumbers rewrites json.Number leaves into int64 where the
// value is integral, float64 otherwise.
func convertNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = convertNumbers(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = convertNumbers(elem)
		}
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}
