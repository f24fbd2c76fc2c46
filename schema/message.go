package schema

import (
	"errors"
	"fmt"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/wire"
)

type dimCodec struct {
	check  func(*Dimension) error
	encode func(*Dimension) (wire.Dimension, error)
	decode func(wire.Dimension) (*Dimension, error)
}

var dimCodecs = map[datatype.Datatype]dimCodec{
	datatype.Int8:    dimCodecOf[int8](),
	datatype.Uint8:   dimCodecOf[uint8](),
	datatype.Int16:   dimCodecOf[int16](),
	datatype.Uint16:  dimCodecOf[uint16](),
	datatype.Int32:   dimCodecOf[int32](),
	datatype.Uint32:  dimCodecOf[uint32](),
	datatype.Int64:   dimCodecOf[int64](),
	datatype.Uint64:  dimCodecOf[uint64](),
	datatype.Float32: dimCodecOf[float32](),
	datatype.Float64: dimCodecOf[float64](),
}

func dimCodecOf[T datatype.Scalar]() dimCodec {
	return dimCodec{
		check:  checkDim[T],
		encode: encodeDim[T],
		decode: decodeDim[T],
	}
}

func checkDim[T datatype.Scalar](d *Dimension) error {
	lo, hi, ok := Bounds[T](d)
	if !ok {
		return fmt.Errorf("domain must be a []%s of length 2", d.Type)
	}
	if lo > hi {
		return fmt.Errorf("lower bound %v exceeds upper bound %v", lo, hi)
	}
	if d.TileExtent != nil {
		ext, ok := d.TileExtent.(T)
		if !ok {
			return fmt.Errorf("tile extent %v is not a %s", d.TileExtent, d.Type)
		}
		if ext <= 0 {
			return fmt.Errorf("tile extent %v must be positive", ext)
		}
	}
	return nil
}

func encodeDim[T datatype.Scalar](d *Dimension) (wire.Dimension, error) {
	lo, hi, ok := Bounds[T](d)
	if !ok {
		return wire.Dimension{}, fmt.Errorf("%w: dimension %q domain is not a []%s pair", ErrInvalid, d.Name, d.Type)
	}
	out := wire.Dimension{
		Name:           d.Name,
		NullTileExtent: d.TileExtent == nil,
		Type:           d.Type.String(),
	}
	*wire.Slot[T](&out.Domain) = []T{lo, hi}
	if d.TileExtent != nil {
		ext, ok := d.TileExtent.(T)
		if !ok {
			return wire.Dimension{}, fmt.Errorf("%w: dimension %q tile extent is not a %s", ErrInvalid, d.Name, d.Type)
		}
		out.TileExtent = wire.ValueOf(ext)
	}
	return out, nil
}

func decodeDim[T datatype.Scalar](m wire.Dimension) (*Dimension, error) {
	dom := *wire.Slot[T](&m.Domain)
	if len(dom) != 2 || len(m.Domain.Tags()) != 1 {
		return nil, fmt.Errorf("%w: dimension %q domain must be a %s pair", ErrInvalid, m.Name, m.Type)
	}
	d := &Dimension{
		Name:   m.Name,
		Type:   datatype.For[T](),
		Domain: []T{dom[0], dom[1]},
	}
	if !m.NullTileExtent {
		ext, ok := wire.ValueAs[T](m.TileExtent)
		if !ok {
			return nil, fmt.Errorf("%w: dimension %q tile extent missing or not a %s", ErrInvalid, m.Name, m.Type)
		}
		d.TileExtent = ext
	}
	return d, nil
}

// ToMessage converts the schema to its wire form.
func (s *ArraySchema) ToMessage() (*wire.ArraySchema, error) {
	if s.Domain == nil {
		return nil, fmt.Errorf("%w: missing domain", ErrInvalid)
	}
	codec, ok := dimCodecs[s.Domain.Type]
	if !ok {
		return nil, fmt.Errorf("%w: datatype %s cannot type a domain", ErrInvalid, s.Domain.Type)
	}

	dom := &wire.Domain{
		CellOrder:  s.CellOrder.String(),
		Dimensions: make([]wire.Dimension, 0, len(s.Domain.Dimensions)),
		TileOrder:  s.TileOrder.String(),
		Type:       s.Domain.Type.String(),
	}
	for _, d := range s.Domain.Dimensions {
		wd, err := codec.encode(d)
		if err != nil {
			return nil, err
		}
		dom.Dimensions = append(dom.Dimensions, wd)
	}

	attrs := make([]wire.Attribute, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		attrs = append(attrs, wire.Attribute{
			CellValNum:      a.CellValNum,
			Compressor:      a.Compressor.String(),
			CompressorLevel: a.CompressionLevel,
			Name:            a.Name,
			Type:            a.Type.String(),
		})
	}

	return &wire.ArraySchema{
		ArrayType:              s.ArrayType.String(),
		Attributes:             attrs,
		Capacity:               wire.Uint64(s.Capacity),
		CellOrder:              s.CellOrder.String(),
		CoordsCompression:      s.CoordsCompression.String(),
		CoordsCompressionLevel: s.CoordsCompressionLevel,
		Domain:                 dom,
		OffsetCompression:      s.OffsetCompression.String(),
		OffsetCompressionLevel: s.OffsetCompressionLevel,
		TileOrder:              s.TileOrder.String(),
		URI:                    s.URI,
		Version:                append([]int32(nil), s.Version[:]...),
	}, nil
}

// FromMessage decodes a schema from its wire form.
func FromMessage(m *wire.ArraySchema) (*ArraySchema, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: missing array schema", ErrInvalid)
	}
	if m.Domain == nil {
		return nil, fmt.Errorf("%w: missing domain", ErrInvalid)
	}

	var errs []error
	arrayType, err := ParseArrayType(m.ArrayType)
	errs = append(errs, err)
	cellOrder, err := ParseLayout(m.CellOrder)
	errs = append(errs, err)
	tileOrder, err := ParseLayout(m.TileOrder)
	errs = append(errs, err)
	coords, err := ParseCompressor(m.CoordsCompression)
	errs = append(errs, err)
	offsets, err := ParseCompressor(m.OffsetCompression)
	errs = append(errs, err)
	domType, err := datatype.Parse(m.Domain.Type)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	codec, ok := dimCodecs[domType]
	if !ok {
		return nil, fmt.Errorf("%w: datatype %s cannot type a domain", ErrInvalid, domType)
	}
	dims := make([]*Dimension, 0, len(m.Domain.Dimensions))
	for _, wd := range m.Domain.Dimensions {
		if wd.Type != m.Domain.Type {
			return nil, fmt.Errorf("%w: dimension %q has type %s, domain is %s", ErrInvalid, wd.Name, wd.Type, m.Domain.Type)
		}
		d, err := codec.decode(wd)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}

	attrs := make([]*Attribute, 0, len(m.Attributes))
	for _, wa := range m.Attributes {
		typ, err := datatype.Parse(wa.Type)
		if err != nil {
			return nil, err
		}
		comp, err := ParseCompressor(wa.Compressor)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, &Attribute{
			Name:             wa.Name,
			Type:             typ,
			CellValNum:       wa.CellValNum,
			Compressor:       comp,
			CompressionLevel: wa.CompressorLevel,
		})
	}

	s := &ArraySchema{
		URI:                    m.URI,
		ArrayType:              arrayType,
		Capacity:               uint64(m.Capacity),
		CellOrder:              cellOrder,
		TileOrder:              tileOrder,
		Domain:                 &Domain{Type: domType, Dimensions: dims},
		Attributes:             attrs,
		CoordsCompression:      coords,
		CoordsCompressionLevel: m.CoordsCompressionLevel,
		OffsetCompression:      offsets,
		OffsetCompressionLevel: m.OffsetCompressionLevel,
	}
	copy(s.Version[:], m.Version)
	return s, nil
}
