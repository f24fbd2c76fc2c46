package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/schema"
)

// DenseURI is the URI carried by the fixture schemas.
const DenseURI = "dense_array"

// DenseSchema returns a dense schema with one INT64 dimension d1 over
// [0, 99] (tile extent 5) and one INT32 attribute a1.
func DenseSchema() *schema.ArraySchema {
	s := schema.New(schema.Dense,
		schema.NewDomain(schema.NewDimension[int64]("d1", 0, 99, 5)),
		schema.NewAttribute("a1", datatype.Int32),
	)
	s.URI = DenseURI
	return s
}

// DenseSchemaJSON is the JSON codec output for DenseSchema.
const DenseSchemaJSON = `{"arrayType":"dense","attributes":[{"cellValNum":1,"compressor":"NO_COMPRESSION",` +
	`"compressorLevel":-1,"name":"a1","type":"INT32"}],"capacity":"10000","cellOrder":"row-major",` +
	`"coordsCompression":"ZSTD","coordsCompressionLevel":-1,"domain":{"cellOrder":"row-major",` +
	`"dimensions":[{"name":"d1","nullTileExtent":false,"type":"INT64","tileExtent":{"int64":"5"},` +
	`"domain":{"int64":["0","99"]}}],"tileOrder":"row-major","type":"INT64"},"offsetCompression":"ZSTD",` +
	`"offsetCompressionLevel":-1,"tileOrder":"row-major","uri":"dense_array","version":[1,3,0]}`

// GridSchema returns a dense 2D schema over rows [1, 4] and cols [1, 4]
// with tile extent 2, a fixed INT32 attribute a1 and a variable-length
// STRING_ASCII attribute a2.
func GridSchema() *schema.ArraySchema {
	a2 := schema.NewAttribute("a2", datatype.StringASCII)
	a2.CellValNum = schema.VarNum
	a2.Compressor = schema.Zstd
	s := schema.New(schema.Dense,
		schema.NewDomain(
			schema.NewDimension[int32]("rows", 1, 4, 2),
			schema.NewDimension[int32]("cols", 1, 4, 2),
		),
		schema.NewAttribute("a1", datatype.Int32),
		a2,
	)
	s.URI = "grid_array"
	return s
}

// RNG wraps a seeded random source. It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

// Range returns a random ordered pair lo <= hi within [min, max].
func (r *RNG) Range(minVal, maxVal int64) (lo, hi int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal + 1
	a := minVal + r.rand.Int63n(span)
	b := minVal + r.rand.Int63n(span)
	if a > b {
		a, b = b, a
	}
	return a, b
}

// Int32s returns n random values.
func (r *RNG) Int32s(n int) []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int32, n)
	for i := range out {
		out[i] = r.rand.Int31() - 1<<30
	}
	return out
}
