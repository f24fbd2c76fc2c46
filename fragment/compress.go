package fragment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/arraystore/internal/conv"
	"github.com/hupe1980/arraystore/schema"
)

// Sections are a sequence of blocks:
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// CompressedSize 0 marks a block stored raw because compression did not
// shrink it below 90% of its size.
const blockHeaderSize = 8

// maxBlockSize bounds a block so both sizes fit the header.
const maxBlockSize = 4 << 20

var errBlockTruncated = errors.New("fragment: block extends beyond section")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

func compressZstd(data []byte, level int32) ([]byte, error) {
	if level > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func compressGzip(data []byte, level int32) ([]byte, error) {
	if level < 0 || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, int(level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	// 0 means incompressible.
	return compressed[:n], nil
}

// appendBlock compresses one block with c and appends it, header first, to dst.
func appendBlock(dst, block []byte, c schema.Compressor, level int32) ([]byte, error) {
	var compressed []byte
	var err error
	switch c {
	case schema.NoCompression:
	case schema.Gzip:
		compressed, err = compressGzip(block, level)
	case schema.Zstd:
		compressed, err = compressZstd(block, level)
	case schema.LZ4:
		compressed, err = compressLZ4(block)
	default:
		return nil, fmt.Errorf("fragment: unsupported compressor %s", c)
	}
	if err != nil {
		return nil, err
	}

	raw := len(compressed) == 0 || float64(len(compressed)) > float64(len(block))*0.9
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(block)))
	if raw {
		dst = binary.LittleEndian.AppendUint32(dst, 0)
		return append(dst, block...), nil
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(compressed)))
	return append(dst, compressed...), nil
}

// compressSection splits data into blocks of about blockSize bytes, cut at
// multiples of unit so no cell straddles two blocks, and compresses each.
func compressSection(data []byte, c schema.Compressor, level int32, blockSize, unit int) ([]byte, error) {
	if unit <= 0 {
		unit = 1
	}
	blockSize = max(unit, min(blockSize, maxBlockSize)/unit*unit)
	if blockSize > maxBlockSize {
		// A single cell larger than the block limit.
		blockSize = maxBlockSize
	}

	out := make([]byte, 0, len(data)/2+blockHeaderSize)
	for off := 0; off < len(data); off += blockSize {
		var err error
		out, err = appendBlock(out, data[off:min(off+blockSize, len(data))], c, level)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// decompressSection reverses compressSection. size is the expected
// uncompressed length.
func decompressSection(section []byte, c schema.Compressor, size uint64) ([]byte, error) {
	n, err := conv.Uint64ToInt(size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, n)
	for off := 0; off < len(section); {
		if off+blockHeaderSize > len(section) {
			return nil, errBlockTruncated
		}
		rawSize := int(binary.LittleEndian.Uint32(section[off:]))
		compSize := int(binary.LittleEndian.Uint32(section[off+4:]))
		off += blockHeaderSize

		if compSize == 0 {
			if off+rawSize > len(section) {
				return nil, errBlockTruncated
			}
			out = append(out, section[off:off+rawSize]...)
			off += rawSize
			continue
		}
		if off+compSize > len(section) {
			return nil, errBlockTruncated
		}
		block, err := decompressBlock(section[off:off+compSize], c, rawSize)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		off += compSize
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("fragment: section decompressed to %d bytes, want %d", len(out), size)
	}
	return out, nil
}

func decompressBlock(data []byte, c schema.Compressor, rawSize int) ([]byte, error) {
	result := make([]byte, rawSize)
	switch c {
	case schema.LZ4:
		n, err := lz4.UncompressBlock(data, result)
		if err != nil {
			return nil, err
		}
		result = result[:n]

	case schema.Zstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		if result, err = dec.DecodeAll(data, result[:0]); err != nil {
			return nil, err
		}

	case schema.Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		n, err := io.ReadFull(r, result)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		result = result[:n]

	default:
		return nil, fmt.Errorf("fragment: block compressed with unsupported compressor %s", c)
	}

	if len(result) != rawSize {
		return nil, errors.New("fragment: decompressed size mismatch")
	}
	return result, nil
}
