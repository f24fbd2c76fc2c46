// Package datatype defines the scalar datatypes of array domains and attributes.
//
// Each Datatype has a stable wire token ("INT32", "STRING_UTF8", ...) used by the
// query and schema messages, a fixed per-value byte size, and a Go slice type that
// backs it in memory:
//
//	INT8..UINT64, FLOAT32, FLOAT64   []int8 .. []float64
//	CHAR, STRING_ASCII, STRING_UTF8  []byte
//	STRING_UTF16, STRING_UCS2        []uint16
//	STRING_UTF32, STRING_UCS4        []uint32
//	ANY                              none
//
// Only the ten numeric types may type a dimension domain (IsDomainType).
package datatype
