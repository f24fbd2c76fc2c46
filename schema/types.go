package schema

import "fmt"

// Layout is a cell traversal order.
type Layout uint8

const (
	RowMajor Layout = iota
	ColMajor
	GlobalOrder
	Unordered
)

var layoutTokens = [...]string{
	RowMajor:    "row-major",
	ColMajor:    "col-major",
	GlobalOrder: "global-order",
	Unordered:   "unordered",
}

func (l Layout) String() string {
	if int(l) < len(layoutTokens) {
		return layoutTokens[l]
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// ParseLayout resolves a layout token such as "row-major".
func ParseLayout(token string) (Layout, error) {
	for i, t := range layoutTokens {
		if t == token {
			return Layout(i), nil
		}
	}
	return 0, fmt.Errorf("%w: layout %q", ErrUnknownToken, token)
}

// ArrayType distinguishes dense from sparse arrays.
type ArrayType uint8

const (
	Dense ArrayType = iota
	Sparse
)

func (t ArrayType) String() string {
	switch t {
	case Dense:
		return "dense"
	case Sparse:
		return "sparse"
	default:
		return fmt.Sprintf("ArrayType(%d)", uint8(t))
	}
}

// ParseArrayType resolves "dense" or "sparse".
func ParseArrayType(token string) (ArrayType, error) {
	switch token {
	case "dense":
		return Dense, nil
	case "sparse":
		return Sparse, nil
	default:
		return 0, fmt.Errorf("%w: array type %q", ErrUnknownToken, token)
	}
}

// Compressor selects the codec applied to attribute tiles.
type Compressor uint8

const (
	NoCompression Compressor = iota
	Gzip
	Zstd
	LZ4
)

var compressorTokens = [...]string{
	NoCompression: "NO_COMPRESSION",
	Gzip:          "GZIP",
	Zstd:          "ZSTD",
	LZ4:           "LZ4",
}

func (c Compressor) String() string {
	if int(c) < len(compressorTokens) {
		return compressorTokens[c]
	}
	return fmt.Sprintf("Compressor(%d)", uint8(c))
}

// ParseCompressor resolves a compressor token such as "ZSTD".
func ParseCompressor(token string) (Compressor, error) {
	for i, t := range compressorTokens {
		if t == token {
			return Compressor(i), nil
		}
	}
	return 0, fmt.Errorf("%w: compressor %q", ErrUnknownToken, token)
}
