package radapter

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DefaultField is the single Redis stream-entry field name reserved for the typed
// payload.
const DefaultField = "_"

// Scalar constrains the fixed-width numeric types the codec can encode directly into the
// default field. This is the Go analogue of the original's "trivially copyable,
// fixed-layout" payload restriction: Go has no sizeof/object-representation primitive, so
// rather than reinterpreting memory the codec fixes the wire byte order explicitly
// (little-endian) via encoding/binary.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// EncodeScalar writes v's fixed-width little-endian representation.
func EncodeScalar[V Scalar](v V) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(scalarWidth(v))
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// DecodeScalar reads a fixed-width little-endian value. It reports false if data's length
// does not match V's width.
func DecodeScalar[V Scalar](data []byte) (V, bool) {
	var v V
	if len(data) != scalarWidth(v) {
		return v, false
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &v); err != nil {
		return v, false
	}
	return v, true
}

// EncodeVector concatenates the little-endian representation of each element.
func EncodeVector[V Scalar](values []V) []byte {
	if len(values) == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	buf.Grow(scalarWidth(values[0]) * len(values))
	for _, v := range values {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// DecodeVector reinterprets data as a concatenation of fixed-width elements. It returns
// nil (treated as empty) when data's length is not a multiple of V's width.
func DecodeVector[V Scalar](data []byte) []V {
	var zero V
	width := scalarWidth(zero)
	if width <= 0 || len(data) == 0 {
		return nil
	}
	if len(data)%width != 0 {
		return nil
	}
	n := len(data) / width
	out := make([]V, 0, n)
	r := bytes.NewReader(data)
	for i := 0; i < n; i++ {
		var v V
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func scalarWidth[V Scalar](v V) int {
	return binary.Size(v)
}

// EncodeString returns the raw bytes of s for the default field.
func EncodeString(s string) []byte {
	return []byte(s)
}

// AttrsFromValues converts a decoded Redis hash/stream-entry value map (whose values
// arrive as interface{}, typically string) into a plain map[string]string, dropping the
// default field's raw payload bytes since attribute-map reads bypass it entirely (§4.4).
func AttrsFromValues(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if k == DefaultField {
			continue
		}
		out[k] = stringifyValue(v)
	}
	return out
}

func stringifyValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
