package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// 64-bit integers travel as JSON strings so that peers without 64-bit
// integer precision (JavaScript, some JSON libraries) keep exact values.
// Narrower integers are plain JSON numbers. The binary codecs ignore these
// methods and encode native integers.

// Int64 is an int64 rendered as a JSON string.
type Int64 int64

// MarshalJSON implements json.Marshaler.
func (v Int64) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatInt(int64(v), 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are accepted too.
func (v *Int64) UnmarshalJSON(b []byte) error {
	n, err := strconv.ParseInt(unquote(b), 10, 64)
	if err != nil {
		return fmt.Errorf("wire: invalid int64 %s: %w", b, err)
	}
	*v = Int64(n)
	return nil
}

// Uint64 is a uint64 rendered as a JSON string.
type Uint64 uint64

// MarshalJSON implements json.Marshaler.
func (v Uint64) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatUint(uint64(v), 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are accepted too.
func (v *Uint64) UnmarshalJSON(b []byte) error {
	n, err := strconv.ParseUint(unquote(b), 10, 64)
	if err != nil {
		return fmt.Errorf("wire: invalid uint64 %s: %w", b, err)
	}
	*v = Uint64(n)
	return nil
}

// Int64s is an int64 list rendered as JSON strings.
type Int64s []int64

// MarshalJSON implements json.Marshaler.
func (s Int64s) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(s)*4)
	out = append(out, '[')
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendQuote(out, strconv.FormatInt(v, 10))
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Int64s) UnmarshalJSON(b []byte) error {
	raw, err := splitList(b)
	if err != nil || raw == nil {
		*s = nil
		return err
	}
	out := make(Int64s, len(raw))
	for i, r := range raw {
		if out[i], err = strconv.ParseInt(unquote(r), 10, 64); err != nil {
			return fmt.Errorf("wire: invalid int64 %s: %w", r, err)
		}
	}
	*s = out
	return nil
}

// Uint64s is a uint64 list rendered as JSON strings.
type Uint64s []uint64

// MarshalJSON implements json.Marshaler.
func (s Uint64s) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(s)*4)
	out = append(out, '[')
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendQuote(out, strconv.FormatUint(v, 10))
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Uint64s) UnmarshalJSON(b []byte) error {
	raw, err := splitList(b)
	if err != nil || raw == nil {
		*s = nil
		return err
	}
	out := make(Uint64s, len(raw))
	for i, r := range raw {
		if out[i], err = strconv.ParseUint(unquote(r), 10, 64); err != nil {
			return fmt.Errorf("wire: invalid uint64 %s: %w", r, err)
		}
	}
	*s = out
	return nil
}

// Uint8s is a uint8 list rendered as a JSON number array instead of base64.
type Uint8s []uint8

// MarshalJSON implements json.Marshaler.
func (s Uint8s) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(s)*4)
	out = append(out, '[')
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Uint8s) UnmarshalJSON(b []byte) error {
	var v []uint16
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("wire: invalid uint8 list: %w", err)
	}
	if v == nil {
		*s = nil
		return nil
	}
	out := make(Uint8s, len(v))
	for i, x := range v {
		if x > 0xff {
			return fmt.Errorf("wire: uint8 value %d out of range", x)
		}
		out[i] = uint8(x)
	}
	*s = out
	return nil
}

func splitList(b []byte) ([]json.RawMessage, error) {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("wire: invalid list: %w", err)
	}
	if raw == nil {
		raw = []json.RawMessage{}
	}
	return raw, nil
}

func unquote(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return string(b[1 : len(b)-1])
	}
	return string(b)
}

// Non-finite floats have no JSON number form. They travel as the string
// tokens "NaN", "Infinity" and "-Infinity"; finite values stay numbers.
const (
	tokenNaN    = "NaN"
	tokenPosInf = "Infinity"
	tokenNegInf = "-Infinity"
)

// Float32s is a float32 list that admits non-finite values in JSON.
type Float32s []float32

// MarshalJSON implements json.Marshaler.
func (s Float32s) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(s)*8)
	out = append(out, '[')
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendFloat(out, float64(v), 32)
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Float32s) UnmarshalJSON(b []byte) error {
	raw, err := splitList(b)
	if err != nil || raw == nil {
		*s = nil
		return err
	}
	out := make(Float32s, len(raw))
	for i, r := range raw {
		f, err := parseFloat(r, 32)
		if err != nil {
			return err
		}
		out[i] = float32(f)
	}
	*s = out
	return nil
}

// Float64s is a float64 list that admits non-finite values in JSON.
type Float64s []float64

// MarshalJSON implements json.Marshaler.
func (s Float64s) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(s)*8)
	out = append(out, '[')
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendFloat(out, v, 64)
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Float64s) UnmarshalJSON(b []byte) error {
	raw, err := splitList(b)
	if err != nil || raw == nil {
		*s = nil
		return err
	}
	out := make(Float64s, len(raw))
	for i, r := range raw {
		if out[i], err = parseFloat(r, 64); err != nil {
			return err
		}
	}
	*s = out
	return nil
}

// appendFloat renders f the way encoding/json does, or as a quoted token
// when f is not finite.
func appendFloat(dst []byte, f float64, bits int) []byte {
	switch {
	case math.IsNaN(f):
		return strconv.AppendQuote(dst, tokenNaN)
	case math.IsInf(f, 1):
		return strconv.AppendQuote(dst, tokenPosInf)
	case math.IsInf(f, -1):
		return strconv.AppendQuote(dst, tokenNegInf)
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	start := len(dst)
	dst = strconv.AppendFloat(dst, f, format, -1, bits)
	if format == 'e' {
		// e-09 to e-9
		if n := len(dst) - start; n >= 4 && dst[len(dst)-4] == 'e' && dst[len(dst)-3] == '-' && dst[len(dst)-2] == '0' {
			dst[len(dst)-2] = dst[len(dst)-1]
			dst = dst[:len(dst)-1]
		}
	}
	return dst
}

func parseFloat(r []byte, bits int) (float64, error) {
	s := bytes.TrimSpace(r)
	if len(s) > 0 && s[0] == '"' {
		switch unquote(s) {
		case tokenNaN:
			return math.NaN(), nil
		case tokenPosInf:
			return math.Inf(1), nil
		case tokenNegInf:
			return math.Inf(-1), nil
		}
		return 0, fmt.Errorf("wire: invalid float token %s", s)
	}
	f, err := strconv.ParseFloat(string(s), bits)
	if err != nil {
		return 0, fmt.Errorf("wire: invalid float%d %s: %w", bits, s, err)
	}
	return f, nil
}

// Chars is the byte list of a CHAR buffer. In JSON it is a string when the
// bytes are valid UTF-8 and a number array otherwise, so arbitrary bytes
// survive the round trip. Binary codecs carry it as a byte string.
type Chars []byte

// MarshalJSON implements json.Marshaler.
func (c Chars) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	if utf8.Valid(c) {
		return json.Marshal(string(c))
	}
	return Uint8s(c).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Chars) UnmarshalJSON(b []byte) error {
	t := bytes.TrimSpace(b)
	if len(t) > 0 && t[0] == '"' {
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return fmt.Errorf("wire: invalid text: %w", err)
		}
		*c = Chars(s)
		return nil
	}
	var u Uint8s
	if err := u.UnmarshalJSON(t); err != nil {
		return err
	}
	*c = Chars(u)
	return nil
}
