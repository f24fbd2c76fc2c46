package fragment

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/arraystore/schema"
)

// DirName is the directory below an array URI that holds its fragments.
const DirName = schema.SpecialNamePrefix + "fragments"

// NewName returns a fragment name of the form __<uuid>_<unix-nanos>.
func NewName(id uuid.UUID, t time.Time) string {
	return fmt.Sprintf("%s%s_%d", schema.SpecialNamePrefix, id, t.UnixNano())
}

// ParseName extracts the id and timestamp from a fragment name.
func ParseName(name string) (uuid.UUID, int64, error) {
	rest, ok := strings.CutPrefix(name, schema.SpecialNamePrefix)
	i := strings.LastIndexByte(rest, '_')
	if !ok || i < 0 {
		return uuid.Nil, 0, fmt.Errorf("fragment: malformed name %q", name)
	}
	id, err := uuid.Parse(rest[:i])
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("fragment: malformed name %q: %w", name, err)
	}
	ts, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("fragment: malformed name %q: %w", name, err)
	}
	return id, ts, nil
}

// Dir returns the blob prefix of the fragments of arrayURI, with a trailing
// slash.
func Dir(arrayURI string) string {
	return path.Join(arrayURI, DirName) + "/"
}

// Key returns the blob name of fragment name in arrayURI.
func Key(arrayURI, name string) string {
	return path.Join(arrayURI, DirName, name)
}
