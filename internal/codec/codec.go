// Package codec converts scalar values to and from the byte layout each
// on-chain column type expects.
//
// Encoding always follows the column's declared tag. A literal that looks
// like an address is still encoded as text when the column is TEXT.
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/seiql/internal/ir"
)

// Byte widths of the fixed-size encodings.
const (
	IntegerWidth = 32
	FloatWidth   = 8
	BoolWidth    = 1
)

// Codec is the stateless default implementation. The zero value is ready.
type Codec struct{}

// Encode is a convenience wrapper over Codec.Encode.
func Encode(v ir.IRValue, tag ir.TypeTag, column string) ([]byte, error) {
	return Codec{}.Encode(v, tag, column)
}

// Decode is a convenience wrapper over Codec.Decode.
func Decode(data []byte, tag ir.TypeTag) (ir.IRValue, error) {
	return Codec{}.Decode(data, tag)
}

// Encode converts v to the canonical bytes of tag. Errors carry the column
// name and are coded TYPE_MISMATCH for value kinds the tag cannot hold and
// VALIDATION_ERROR for malformed values.
func (Codec) Encode(v ir.IRValue, tag ir.TypeTag, column string) ([]byte, error) {
	if ir.IsNull(v) {
		return nil, mismatch(column, tag, v)
	}

	switch tag {
	case ir.TagInteger:
		n, err := integerOf(v, column)
		if err != nil {
			return nil, err
		}
		return encodeInteger(n), nil

	case ir.TagFloat:
		f, err := floatOf(v, column)
		if err != nil {
			return nil, err
		}
		out := make([]byte, FloatWidth)
		binary.BigEndian.PutUint64(out, math.Float64bits(f))
		return out, nil

	case ir.TagText:
		var s string
		switch val := v.(type) {
		case ir.IRString:
			s = string(val)
		case ir.IRAddress:
			s = string(val)
		case ir.IRInt:
			s = strconv.FormatInt(int64(val), 10)
		case ir.IRFloat:
			s = ir.Display(val)
		default:
			return nil, mismatch(column, tag, v)
		}
		if !utf8.ValidString(s) {
			return nil, invalid(column, "text is not valid UTF-8")
		}
		return []byte(s), nil

	case ir.TagBool:
		b, err := boolOf(v, column)
		if err != nil {
			return nil, err
		}
		if b {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil

	case ir.TagAddress:
		var s string
		switch val := v.(type) {
		case ir.IRAddress:
			s = string(val)
		case ir.IRString:
			s = string(val)
		default:
			return nil, mismatch(column, tag, v)
		}
		a, err := ir.ParseAddress(s)
		if err != nil {
			return nil, invalid(column, "invalid address %q: want 0x followed by 40 hex digits", s)
		}
		return a[:], nil

	case ir.TagBlob:
		switch val := v.(type) {
		case ir.IRBlob:
			return append([]byte(nil), val...), nil
		case ir.IRAddress:
			a, _ := ir.ParseAddress(string(val))
			return a[:], nil
		case ir.IRString:
			s := string(val)
			if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
				out, err := hex.DecodeString(s[2:])
				if err != nil {
					return nil, invalid(column, "invalid hex blob %q", s)
				}
				return out, nil
			}
			return []byte(s), nil
		default:
			return nil, mismatch(column, tag, v)
		}

	default:
		return nil, ir.Errorf(ir.CodeUnsupportedColumnType, "unknown type tag %d", uint8(tag)).WithColumn(column)
	}
}

// Decode converts bytes stored under tag back to a value.
func (Codec) Decode(data []byte, tag ir.TypeTag) (ir.IRValue, error) {
	switch tag {
	case ir.TagInteger:
		if len(data) != IntegerWidth {
			return nil, ir.Errorf(ir.CodeValidation, "integer must be %d bytes, got %d", IntegerWidth, len(data))
		}
		n, err := decodeInteger(data)
		if err != nil {
			return nil, err
		}
		return ir.IRInt(n), nil

	case ir.TagFloat:
		if len(data) != FloatWidth {
			return nil, ir.Errorf(ir.CodeValidation, "float must be %d bytes, got %d", FloatWidth, len(data))
		}
		return ir.IRFloat(math.Float64frombits(binary.BigEndian.Uint64(data))), nil

	case ir.TagText:
		if !utf8.Valid(data) {
			return nil, ir.Errorf(ir.CodeValidation, "text is not valid UTF-8")
		}
		return ir.IRString(data), nil

	case ir.TagBool:
		if len(data) != BoolWidth || data[0] > 1 {
			return nil, ir.Errorf(ir.CodeValidation, "bool must be a single 0x00 or 0x01 byte, got %x", data)
		}
		return ir.IRBool(data[0] == 1), nil

	case ir.TagAddress:
		a, err := ir.AddressFromBytes(data)
		if err != nil {
			return nil, ir.WrapError(ir.CodeValidation, err, "invalid address bytes")
		}
		return ir.AddressValue(a), nil

	case ir.TagBlob:
		return ir.IRBlob(append([]byte(nil), data...)), nil

	default:
		return nil, ir.Errorf(ir.CodeUnsupportedColumnType, "unknown type tag %d", uint8(tag))
	}
}

// encodeInteger writes n as a 256-bit big-endian word. The low 64 bits hold
// the two's complement of n and the high 192 bits stay zero, so negative
// values survive a uint256 slot unchanged.
func encodeInteger(n int64) []byte {
	out := make([]byte, IntegerWidth)
	binary.BigEndian.PutUint64(out[IntegerWidth-8:], uint64(n))
	return out
}

func decodeInteger(data []byte) (int64, error) {
	for _, b := range data[:IntegerWidth-8] {
		if b != 0 {
			return 0, ir.Errorf(ir.CodeValidation, "integer 0x%s overflows int64", new(big.Int).SetBytes(data).Text(16))
		}
	}
	return int64(binary.BigEndian.Uint64(data[IntegerWidth-8:])), nil
}

func integerOf(v ir.IRValue, column string) (int64, error) {
	switch val := v.(type) {
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return 1, nil
		}
		return 0, nil
	case ir.IRString:
		n, err := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
		if err != nil {
			return 0, invalid(column, "invalid integer %q", string(val))
		}
		return n, nil
	case ir.IRFloat:
		f := float64(val)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, invalid(column, "float %s has no exact integer value", ir.Display(val))
		}
		return int64(f), nil
	default:
		return 0, mismatch(column, ir.TagInteger, v)
	}
}

func floatOf(v ir.IRValue, column string) (float64, error) {
	switch val := v.(type) {
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRInt:
		return float64(val), nil
	case ir.IRString:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		if err != nil {
			return 0, invalid(column, "invalid float %q", string(val))
		}
		return f, nil
	default:
		return 0, mismatch(column, ir.TagFloat, v)
	}
}

func boolOf(v ir.IRValue, column string) (bool, error) {
	switch val := v.(type) {
	case ir.IRBool:
		return bool(val), nil
	case ir.IRInt:
		switch val {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, invalid(column, "bool must be 0 or 1, got %d", int64(val))
	case ir.IRString:
		switch strings.ToLower(strings.TrimSpace(string(val))) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, invalid(column, "invalid bool %q", string(val))
	default:
		return false, mismatch(column, ir.TagBool, v)
	}
}

func mismatch(column string, tag ir.TypeTag, v ir.IRValue) *ir.Error {
	return ir.Errorf(ir.CodeTypeMismatch, "cannot store %s in %s column", kindName(v), tag).WithColumn(column)
}

func invalid(column, format string, args ...any) *ir.Error {
	return ir.Errorf(ir.CodeValidation, format, args...).WithColumn(column)
}

func kindName(v ir.IRValue) string {
	switch v.(type) {
	case nil, ir.IRNull:
		return "NULL"
	case ir.IRInt:
		return "integer"
	case ir.IRFloat:
		return "float"
	case ir.IRString:
		return "text"
	case ir.IRBool:
		return "bool"
	case ir.IRAddress:
		return "address"
	case ir.IRBlob:
		return "blob"
	default:
		return "composite value"
	}
}
