package ir

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface over the scalar values that flow between
// SQL literals, the codec, and mirror rows. IRArray and IRObject exist for
// trace and output documents only; they never reach the codec.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents SQL NULL.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a text value.
type IRString string

func (IRString) irValue() {}

// IRInt represents a signed 64-bit integer.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat represents a 64-bit IEEE-754 value.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a boolean.
type IRBool bool

func (IRBool) irValue() {}

// IRAddress holds a validated address in lowercase hex form.
// Construct with NewIRAddress so the invariant holds.
type IRAddress string

func (IRAddress) irValue() {}

// IRBlob represents raw bytes.
type IRBlob []byte

func (IRBlob) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRAddress validates s and returns its lowercase form.
func NewIRAddress(s string) (IRAddress, error) {
	if !IsAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return IRAddress(strings.ToLower(s)), nil
}

// AddressValue converts a decoded Address to an IRAddress.
func AddressValue(a Address) IRAddress {
	return IRAddress(a.Hex())
}

// IsNull reports whether v is nil or IRNull.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for astral characters.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// Display renders v the way the CLI and scenario files write values.
// Blobs render as 0x-prefixed hex and floats use the shortest exact form.
func Display(v IRValue) string {
	switch val := v.(type) {
	case nil, IRNull:
		return "NULL"
	case IRString:
		return string(val)
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRFloat:
		return formatFloat(float64(val))
	case IRBool:
		return strconv.FormatBool(bool(val))
	case IRAddress:
		return string(val)
	case IRBlob:
		return "0x" + hex.EncodeToString(val)
	default:
		b, err := MarshalIRValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// Equal compares two values. Integers and floats compare numerically and
// addresses compare case-insensitively against strings.
func Equal(a, b IRValue) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case IRInt:
		switch y := b.(type) {
		case IRInt:
			return x == y
		case IRFloat:
			return float64(x) == float64(y)
		}
	case IRFloat:
		switch y := b.(type) {
		case IRFloat:
			return x == y || (math.IsNaN(float64(x)) && math.IsNaN(float64(y)))
		case IRInt:
			return float64(x) == float64(y)
		}
	case IRAddress:
		switch y := b.(type) {
		case IRAddress:
			return x == y
		case IRString:
			return strings.EqualFold(string(x), string(y))
		}
	case IRString:
		switch y := b.(type) {
		case IRString:
			return x == y
		case IRAddress:
			return strings.EqualFold(string(x), string(y))
		}
	case IRBool:
		y, ok := b.(IRBool)
		return ok && x == y
	case IRBlob:
		y, ok := b.(IRBlob)
		return ok && bytes.Equal(x, y)
	}
	return false
}

// FromNative converts a decoded YAML or JSON scalar to an IRValue.
// Strings matching the address pattern become IRAddress.
func FromNative(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		if IsAddress(val) {
			return IRAddress(strings.ToLower(val)), nil
		}
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return IRInt(val), nil
	case float64:
		return IRFloat(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return IRInt(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return IRFloat(f), nil
	case []byte:
		return IRBlob(val), nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// This is NOT canonical marshaling; use MarshalCanonical for hashing and
// golden traces.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes for CLI output.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRFloat:
		if math.IsInf(float64(val), 0) || math.IsNaN(float64(val)) {
			return json.Marshal(formatFloat(float64(val)))
		}
		return json.Marshal(float64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRAddress:
		return json.Marshal(string(val))
	case IRBlob:
		return json.Marshal("0x" + hex.EncodeToString(val))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}
