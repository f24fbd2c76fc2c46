package wire

// ArraySchema is the wire form of an array schema.
type ArraySchema struct {
	ArrayType              string      `json:"arrayType"`
	Attributes             []Attribute `json:"attributes"`
	Capacity               Uint64      `json:"capacity"`
	CellOrder              string      `json:"cellOrder"`
	CoordsCompression      string      `json:"coordsCompression"`
	CoordsCompressionLevel int32       `json:"coordsCompressionLevel"`
	Domain                 *Domain     `json:"domain"`
	OffsetCompression      string      `json:"offsetCompression"`
	OffsetCompressionLevel int32       `json:"offsetCompressionLevel"`
	TileOrder              string      `json:"tileOrder"`
	URI                    string      `json:"uri"`
	Version                []int32     `json:"version"`
}

// Attribute is the wire form of a schema attribute.
type Attribute struct {
	CellValNum      uint32 `json:"cellValNum"`
	Compressor      string `json:"compressor"`
	CompressorLevel int32  `json:"compressorLevel"`
	Name            string `json:"name"`
	Type            string `json:"type"`
}

// Domain is the wire form of an array domain.
type Domain struct {
	CellOrder  string      `json:"cellOrder"`
	Dimensions []Dimension `json:"dimensions"`
	TileOrder  string      `json:"tileOrder"`
	Type       string      `json:"type"`
}

// Dimension is the wire form of a domain dimension. Domain holds the
// inclusive [lo, hi] pair in the slot of the dimension type.
type Dimension struct {
	Name           string      `json:"name"`
	NullTileExtent bool        `json:"nullTileExtent"`
	Type           string      `json:"type"`
	TileExtent     *TypedValue `json:"tileExtent,omitempty"`
	Domain         TypedArray  `json:"domain"`
}
