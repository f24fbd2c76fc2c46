package wire

// Query is the portable representation of a query's externally visible state.
//
// Field order is significant: the JSON codecs emit fields in declaration order
// and peers compare serialized queries byte for byte.
type Query struct {
	ArraySchema *ArraySchema `json:"arraySchema"`
	Buffers     BufferMap    `json:"buffers"`
	Layout      string       `json:"layout"`
	Status      string       `json:"status"`
	Type        string       `json:"type"`
	Subarray    *TypedArray  `json:"subarray,omitempty"`
	Writer      *Writer      `json:"writer,omitempty"`
}

// BufferMap is the ordered list of attribute buffers of a query.
type BufferMap struct {
	Entries []BufferEntry `json:"entries"`
}

// Lookup returns the buffer bound to key.
func (m BufferMap) Lookup(key string) (AttributeBuffer, bool) {
	for _, e := range m.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return AttributeBuffer{}, false
}

// BufferEntry is one attribute name and its buffer.
type BufferEntry struct {
	Key   string          `json:"key"`
	Value AttributeBuffer `json:"value"`
}

// AttributeBuffer carries the values of one attribute and, for
// variable-length attributes, the byte offsets of each cell.
type AttributeBuffer struct {
	Type         string     `json:"type"`
	Buffer       TypedArray `json:"buffer"`
	BufferOffset Uint64s    `json:"bufferOffset,omitempty"`
}

// Writer is the global-order writer state carried between write calls.
type Writer struct {
	FragmentURI      string            `json:"fragmentUri"`
	GlobalWriteState *GlobalWriteState `json:"globalWriteState,omitempty"`
}

// GlobalWriteState records the cells accepted so far by a global-order writer.
type GlobalWriteState struct {
	CellsWritten Uint64     `json:"cellsWritten"`
	Staged       []Staged   `json:"staged,omitempty"`
	Subarray     TypedArray `json:"subarray"`
}

// Staged holds the not yet flushed bytes of one attribute.
type Staged struct {
	Attribute string  `json:"attribute"`
	Data      []byte  `json:"data,omitempty"`
	Offsets   Uint64s `json:"offsets,omitempty"`
}
