package query

import "fmt"

// Type is the query direction. It is fixed at construction.
type Type uint8

const (
	Read Type = iota
	Write
)

func (t Type) String() string {
	switch t {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType resolves "READ" or "WRITE".
func ParseType(token string) (Type, error) {
	switch token {
	case "READ":
		return Read, nil
	case "WRITE":
		return Write, nil
	default:
		return 0, errorf(ErrDecode, "parse", "unknown query type %q", token)
	}
}

// Status is the lifecycle state of a query.
type Status uint32

const (
	Uninitialized Status = iota
	InProgress
	Completed
	Incomplete
	Failed
)

var statusTokens = [...]string{
	Uninitialized: "UNINITIALIZED",
	InProgress:    "INPROGRESS",
	Completed:     "COMPLETED",
	Incomplete:    "INCOMPLETE",
	Failed:        "FAILED",
}

func (s Status) String() string {
	if int(s) < len(statusTokens) {
		return statusTokens[s]
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

// ParseStatus resolves a status token such as "INPROGRESS".
func ParseStatus(token string) (Status, error) {
	for i, t := range statusTokens {
		if t == token {
			return Status(i), nil
		}
	}
	return 0, errorf(ErrDecode, "parse", "unknown query status %q", token)
}
