package fragment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path"

	"github.com/hupe1980/arraystore/blobstore"
	"github.com/hupe1980/arraystore/codec"
	"github.com/hupe1980/arraystore/internal/conv"
	"github.com/hupe1980/arraystore/internal/hash"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/resource"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

// A fragment blob is laid out as
//
//	[Magic "ASFG"][Version uint16][Flags uint16][MetaLen uint32][MetaCRC uint32]
//	[Metadata JSON][Section bodies...]
//
// Section offsets in the metadata are relative to the first body byte.
const (
	magic         = "ASFG"
	formatVersion = 1
	headerSize    = 16
)

// maxMetadataSize bounds the metadata read before it is verified.
const maxMetadataSize = 64 << 20

// ErrCorrupt reports a fragment blob that fails structural or checksum
// verification.
var ErrCorrupt = errors.New("fragment: corrupt blob")

// Section locates one compressed byte stream inside a fragment blob.
type Section struct {
	Offset     uint64 `json:"offset"`
	Length     uint64 `json:"length"`
	Size       uint64 `json:"size"`
	Compressor string `json:"compressor"`
	Digest     string `json:"digest"`
}

// AttributeMeta describes the stored cells of one attribute.
type AttributeMeta struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	CellValNum uint32   `json:"cellValNum"`
	Data       Section  `json:"data"`
	Offsets    *Section `json:"offsets,omitempty"`
}

// Metadata is the self-description of a fragment. It implements
// query.Fragment.
type Metadata struct {
	Name     string `json:"name"`
	UnixNano int64  `json:"timestamp"`
	// NonEmptyDomain is the subarray the fragment covers, typed after the
	// array domain.
	NonEmptyDomain wire.TypedArray `json:"nonEmptyDomain"`
	CellNum        uint64          `json:"cellNum"`
	Attributes     []AttributeMeta `json:"attributes"`

	key       string
	dataStart uint64
}

var _ query.Fragment = (*Metadata)(nil)

// URI returns the blob name of the fragment.
func (m *Metadata) URI() string { return m.key }

// Timestamp returns the creation time in Unix nanoseconds.
func (m *Metadata) Timestamp() int64 { return m.UnixNano }

// Attribute returns the stored attribute called name.
func (m *Metadata) Attribute(name string) (*AttributeMeta, bool) {
	for i := range m.Attributes {
		if m.Attributes[i].Name == name {
			return &m.Attributes[i], true
		}
	}
	return nil, false
}

// DataSize returns the decompressed size of all sections.
func (m *Metadata) DataSize() uint64 {
	var n uint64
	for _, a := range m.Attributes {
		n += a.Data.Size
		if a.Offsets != nil {
			n += a.Offsets.Size
		}
	}
	return n
}

// blobBuilder accumulates compressed sections.
type blobBuilder struct {
	body []byte
}

func (b *blobBuilder) add(data []byte, c schema.Compressor, level int32, blockSize, unit int) (Section, error) {
	comp, err := compressSection(data, c, level, blockSize, unit)
	if err != nil {
		return Section{}, err
	}
	s := Section{
		Offset:     uint64(len(b.body)),
		Length:     uint64(len(comp)),
		Size:       uint64(len(data)),
		Compressor: c.String(),
		Digest:     hash.Section(data).String(),
	}
	b.body = append(b.body, comp...)
	return s, nil
}

// finish prepends the header and metadata to the section bodies.
func (b *blobBuilder) finish(m *Metadata) ([]byte, error) {
	meta, err := codec.GoJSON{}.Marshal(m)
	if err != nil {
		return nil, err
	}
	if len(meta) > maxMetadataSize {
		return nil, fmt.Errorf("fragment: metadata of %d bytes exceeds %d", len(meta), maxMetadataSize)
	}
	out := make([]byte, 0, headerSize+len(meta)+len(b.body))
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint16(out, formatVersion)
	out = binary.LittleEndian.AppendUint16(out, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(meta)))
	out = binary.LittleEndian.AppendUint32(out, hash.CRC32C(meta))
	out = append(out, meta...)
	return append(out, b.body...), nil
}

// LoadMetadata reads and verifies the header and metadata of the fragment
// stored at key. Section bodies are not read.
func LoadMetadata(ctx context.Context, store blobstore.BlobStore, key string, rc *resource.Controller) (*Metadata, error) {
	blob, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = blob.Close() }()

	src := blobstore.ReaderAt(ctx, blob)
	if blob.Size() < headerSize {
		return nil, fmt.Errorf("%w: %s: %d bytes is shorter than the header", ErrCorrupt, key, blob.Size())
	}
	hdr, err := resource.ReadSection(ctx, src, 0, headerSize, rc)
	if err != nil {
		return nil, err
	}
	if string(hdr[:4]) != magic {
		return nil, fmt.Errorf("%w: %s: bad magic %q", ErrCorrupt, key, hdr[:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != formatVersion {
		return nil, fmt.Errorf("%w: %s: unsupported format version %d", ErrCorrupt, key, v)
	}
	metaLen := int64(binary.LittleEndian.Uint32(hdr[8:]))
	if metaLen > maxMetadataSize || headerSize+metaLen > blob.Size() {
		return nil, fmt.Errorf("%w: %s: metadata length %d out of range", ErrCorrupt, key, metaLen)
	}
	raw, err := resource.ReadSection(ctx, src, headerSize, metaLen, rc)
	if err != nil {
		return nil, err
	}
	if got, want := hash.CRC32C(raw), binary.LittleEndian.Uint32(hdr[12:]); got != want {
		return nil, fmt.Errorf("%w: %s: metadata checksum %08x, want %08x", ErrCorrupt, key, got, want)
	}

	m := &Metadata{}
	if err := (codec.GoJSON{}).Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if m.Name != path.Base(key) {
		return nil, fmt.Errorf("%w: %s: metadata names fragment %q", ErrCorrupt, key, m.Name)
	}
	m.key = key
	m.dataStart = uint64(headerSize + metaLen)

	bodyLen := uint64(blob.Size()) - m.dataStart
	for _, a := range m.Attributes {
		for _, s := range []*Section{&a.Data, a.Offsets} {
			if s == nil {
				continue
			}
			end, err := conv.AddUint64(s.Offset, s.Length)
			if err != nil || end > bodyLen {
				return nil, fmt.Errorf("%w: %s: attribute %q section exceeds the blob", ErrCorrupt, key, a.Name)
			}
		}
	}
	return m, nil
}

// readSection reads, decompresses and verifies one section of m.
func readSection(ctx context.Context, src blobstore.Blob, m *Metadata, s *Section, rc *resource.Controller) ([]byte, error) {
	off, err := conv.Uint64ToInt64(m.dataStart + s.Offset)
	if err != nil {
		return nil, err
	}
	length, err := conv.Uint64ToInt64(s.Length)
	if err != nil {
		return nil, err
	}
	c, err := schema.ParseCompressor(s.Compressor)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, m.key, err)
	}
	comp, err := resource.ReadSection(ctx, blobstore.ReaderAt(ctx, src), off, length, rc)
	if err != nil {
		return nil, err
	}
	data, err := decompressSection(comp, c, s.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, m.key, err)
	}
	want, err := hash.ParseDigest(s.Digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, m.key, err)
	}
	if hash.Section(data) != want {
		return nil, fmt.Errorf("%w: %s: section digest mismatch", ErrCorrupt, m.key)
	}
	return data, nil
}
