package domain

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ID identifies a task. It holds the identifier exactly as the collection
// backend wrote it, so paths and bodies sent back address the same record.
// Comparisons go through Key, under which the number 7 and the strings "7"
// and "007" are the same task.
type ID string

// ParseID turns user or path input into an ID. Only surrounding whitespace is
// removed.
func ParseID(raw string) ID {
	return ID(strings.TrimSpace(raw))
}

// IDFromInt returns the ID for a numeric identifier.
func IDFromInt(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

func (id ID) String() string { return string(id) }

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// Int returns the numeric value of the identifier when it is a base-10
// integer.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(id)), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Key is the canonical comparison form: integers without leading zeros,
// anything else verbatim.
func (id ID) Key() string {
	if n, ok := id.Int(); ok {
		return strconv.FormatInt(n, 10)
	}
	return strings.TrimSpace(string(id))
}

// Equal compares two identifiers by Key.
func (id ID) Equal(other ID) bool {
	return id.Key() == other.Key()
}

// numeric reports whether id is already written as a plain JSON integer.
func (id ID) numeric() bool {
	n, ok := id.Int()
	return ok && strconv.FormatInt(n, 10) == string(id)
}

// MarshalJSON writes plain integers as JSON numbers and everything else,
// zero-padded digits included, as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return sonic.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number, a JSON string or null. Strings are kept
// as written; integral numbers such as 7.0 are read as 7.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*id = IDFromInt(n)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("decode id: unsupported value %s", data)
	}
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		*id = IDFromInt(int64(f))
		return nil
	}
	*id = ID(data)
	return nil
}
