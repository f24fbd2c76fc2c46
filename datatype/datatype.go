package datatype

import (
	"errors"
	"fmt"
)

// ErrUnknownToken is returned when a wire token does not name a datatype.
var ErrUnknownToken = errors.New("unknown datatype token")

// Datatype identifies the scalar type of a dimension domain or attribute.
type Datatype uint8

const (
	Int32 Datatype = iota
	Int64
	Float32
	Float64
	Char
	Int8
	Uint8
	Int16
	Uint16
	Uint32
	Uint64
	StringASCII
	StringUTF8
	StringUTF16
	StringUTF32
	StringUCS2
	StringUCS4
	Any
)

var tokens = [...]string{
	Int32:       "INT32",
	Int64:       "INT64",
	Float32:     "FLOAT32",
	Float64:     "FLOAT64",
	Char:        "CHAR",
	Int8:        "INT8",
	Uint8:       "UINT8",
	Int16:       "INT16",
	Uint16:      "UINT16",
	Uint32:      "UINT32",
	Uint64:      "UINT64",
	StringASCII: "STRING_ASCII",
	StringUTF8:  "STRING_UTF8",
	StringUTF16: "STRING_UTF16",
	StringUTF32: "STRING_UTF32",
	StringUCS2:  "STRING_UCS2",
	StringUCS4:  "STRING_UCS4",
	Any:         "ANY",
}

// String returns the wire token of the datatype (e.g. "INT32").
func (d Datatype) String() string {
	if int(d) < len(tokens) {
		return tokens[d]
	}
	return fmt.Sprintf("Datatype(%d)", uint8(d))
}

// Parse resolves a wire token to a Datatype.
func Parse(token string) (Datatype, error) {
	for i, t := range tokens {
		if t == token {
			return Datatype(i), nil
		}
	}
	return Any, fmt.Errorf("%w: %q", ErrUnknownToken, token)
}

// Size returns the size in bytes of a single value of the datatype.
func (d Datatype) Size() uint64 {
	switch d {
	case Int8, Uint8, Char, StringASCII, StringUTF8, Any:
		return 1
	case Int16, Uint16, StringUTF16, StringUCS2:
		return 2
	case Int32, Uint32, Float32, StringUTF32, StringUCS4:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// IsDomainType reports whether the datatype may type a dimension domain.
func (d Datatype) IsDomainType() bool {
	switch d {
	case Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Float32, Float64:
		return true
	default:
		return false
	}
}

// IsInteger reports whether the datatype is an integer domain type.
func (d Datatype) IsInteger() bool {
	return d.IsDomainType() && d != Float32 && d != Float64
}

// IsString reports whether the datatype belongs to the string family.
func (d Datatype) IsString() bool {
	switch d {
	case Char, StringASCII, StringUTF8, StringUTF16, StringUTF32, StringUCS2, StringUCS4:
		return true
	default:
		return false
	}
}

// Storage returns the datatype whose Go representation backs values of d.
//
// Scalar types store as themselves. The string family stores as the unsigned
// integer of matching width; CHAR keeps its own text representation. ANY has no
// concrete storage and reports false.
func (d Datatype) Storage() (Datatype, bool) {
	switch d {
	case StringASCII, StringUTF8:
		return Uint8, true
	case StringUTF16, StringUCS2:
		return Uint16, true
	case StringUTF32, StringUCS4:
		return Uint32, true
	case Any:
		return Any, false
	default:
		return d, true
	}
}
