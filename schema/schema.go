package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/arraystore/datatype"
)

const (
	// SpecialNamePrefix starts every internal or anonymous name. Such names
	// are never exchanged on the wire.
	SpecialNamePrefix = "__"

	// AnonymousAttribute replaces an empty attribute name.
	AnonymousAttribute = SpecialNamePrefix + "attr"

	// VarNum marks a variable-length attribute.
	VarNum = math.MaxUint32

	// DefaultCapacity is the default number of cells per data tile of a sparse array.
	DefaultCapacity = 10000
)

// Version is the format version written into new schemas.
var Version = [3]int32{1, 3, 0}

// IsSpecialName reports whether name is reserved for internal use.
func IsSpecialName(name string) bool {
	return strings.HasPrefix(name, SpecialNamePrefix)
}

// Dimension is one axis of a domain.
type Dimension struct {
	Name string
	Type datatype.Datatype
	// Domain is the inclusive range as a typed slice of length 2 ([]int64{lo, hi}).
	Domain any
	// TileExtent is a value of the dimension's Go type, or nil.
	TileExtent any
}

// NewDimension creates a dimension over [lo, hi]. At most one tile extent may
// be given.
func NewDimension[T datatype.Scalar](name string, lo, hi T, tileExtent ...T) *Dimension {
	d := &Dimension{
		Name:   name,
		Type:   datatype.For[T](),
		Domain: []T{lo, hi},
	}
	if len(tileExtent) > 0 {
		d.TileExtent = tileExtent[0]
	}
	return d
}

// Bounds returns the domain range of d as values of type T.
func Bounds[T datatype.Scalar](d *Dimension) (lo, hi T, ok bool) {
	dom, ok := d.Domain.([]T)
	if !ok || len(dom) != 2 {
		return lo, hi, false
	}
	return dom[0], dom[1], true
}

// Domain is the ordered set of dimensions of an array. All dimensions share
// the domain datatype.
type Domain struct {
	Type       datatype.Datatype
	Dimensions []*Dimension
}

// NewDomain creates a domain typed after its first dimension. Anonymous
// dimensions are named __dim_<index>.
func NewDomain(dims ...*Dimension) *Domain {
	d := &Domain{Type: datatype.Any, Dimensions: dims}
	if len(dims) > 0 {
		d.Type = dims[0].Type
	}
	for i, dim := range dims {
		if dim.Name == "" {
			dim.Name = SpecialNamePrefix + "dim_" + strconv.Itoa(i)
		}
	}
	return d
}

// DimNum returns the number of dimensions.
func (d *Domain) DimNum() int { return len(d.Dimensions) }

// Attribute is a named, typed value stored in every cell.
type Attribute struct {
	Name             string
	Type             datatype.Datatype
	CellValNum       uint32
	Compressor       Compressor
	CompressionLevel int32
}

// NewAttribute creates a single-valued, uncompressed attribute. An empty
// name becomes AnonymousAttribute.
func NewAttribute(name string, typ datatype.Datatype) *Attribute {
	if name == "" {
		name = AnonymousAttribute
	}
	return &Attribute{
		Name:             name,
		Type:             typ,
		CellValNum:       1,
		Compressor:       NoCompression,
		CompressionLevel: -1,
	}
}

// IsVar reports whether the attribute is variable-length.
func (a *Attribute) IsVar() bool { return a.CellValNum == VarNum }

// ArraySchema describes the domain and attributes of an array.
type ArraySchema struct {
	URI                    string
	ArrayType              ArrayType
	Capacity               uint64
	CellOrder              Layout
	TileOrder              Layout
	Domain                 *Domain
	Attributes             []*Attribute
	CoordsCompression      Compressor
	CoordsCompressionLevel int32
	OffsetCompression      Compressor
	OffsetCompressionLevel int32
	Version                [3]int32
}

// New creates a schema with default capacity, row-major orders and ZSTD
// coordinate and offset compression.
func New(arrayType ArrayType, domain *Domain, attrs ...*Attribute) *ArraySchema {
	return &ArraySchema{
		ArrayType:              arrayType,
		Capacity:               DefaultCapacity,
		CellOrder:              RowMajor,
		TileOrder:              RowMajor,
		Domain:                 domain,
		Attributes:             attrs,
		CoordsCompression:      Zstd,
		CoordsCompressionLevel: -1,
		OffsetCompression:      Zstd,
		OffsetCompressionLevel: -1,
		Version:                Version,
	}
}

// Attribute returns the attribute called name.
func (s *ArraySchema) Attribute(name string) (*Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// AttributeNames returns the attribute names in declaration order.
func (s *ArraySchema) AttributeNames() []string {
	names := make([]string, len(s.Attributes))
	for i, a := range s.Attributes {
		names[i] = a.Name
	}
	return names
}

// DimNum returns the number of dimensions, or 0 without a domain.
func (s *ArraySchema) DimNum() int {
	if s.Domain == nil {
		return 0
	}
	return s.Domain.DimNum()
}

// Check performs the structural checks queries rely on. It is not a full
// schema validation.
func (s *ArraySchema) Check() error {
	if s.Domain == nil || len(s.Domain.Dimensions) == 0 {
		return fmt.Errorf("%w: empty domain", ErrInvalid)
	}
	if !s.Domain.Type.IsDomainType() {
		return fmt.Errorf("%w: datatype %s cannot type a domain", ErrInvalid, s.Domain.Type)
	}
	seen := make(map[string]struct{}, len(s.Domain.Dimensions)+len(s.Attributes))
	for i, dim := range s.Domain.Dimensions {
		if dim.Type != s.Domain.Type {
			return fmt.Errorf("%w: dimension %d has type %s, domain is %s", ErrInvalid, i, dim.Type, s.Domain.Type)
		}
		if err := dimCodecs[dim.Type].check(dim); err != nil {
			return fmt.Errorf("%w: dimension %q: %w", ErrInvalid, dim.Name, err)
		}
		if _, dup := seen[dim.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalid, dim.Name)
		}
		seen[dim.Name] = struct{}{}
	}
	if len(s.Attributes) == 0 {
		return fmt.Errorf("%w: no attributes", ErrInvalid)
	}
	for _, a := range s.Attributes {
		if a.Name == "" {
			return fmt.Errorf("%w: empty attribute name", ErrInvalid)
		}
		if a.CellValNum == 0 {
			return fmt.Errorf("%w: attribute %q has zero values per cell", ErrInvalid, a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalid, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}
