// Package schema describes the shape of an array: its domain (ordered,
// typed dimensions), its attributes, and its tile and cell orders.
//
// Schemas are immutable once attached to a query or array. Names starting
// with SpecialNamePrefix are reserved for anonymous dimensions and attributes.
package schema
