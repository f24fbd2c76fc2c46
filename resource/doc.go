// Package resource limits the memory, concurrency and I/O bandwidth used
// while loading and writing fragments.
//
// A single Controller is shared by every query of an array. All methods
// accept a nil *Controller, which imposes no limits.
package resource
