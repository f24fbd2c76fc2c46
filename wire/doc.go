// Package wire defines the structured messages exchanged between a query
// client and a remote execution peer.
//
// The messages are plain structs; byte encoding is left to package codec.
// Under the JSON codecs, 64-bit integers (Int64, Uint64, Int64s, Uint64s)
// are written as decimal strings and all narrower numbers as JSON numbers:
//
//	{"subarray":{"int64":["1","4"]},"capacity":"10000","cellValNum":1}
//
// Typed payloads use the TypedArray and TypedValue tagged unions. Slot and
// ValueAs give generic access to the slot of a given Go element type.
package wire
