// Package cursor implements the opaque relay connection cursors exchanged with clients.
//
// Wire format: base64("arrayconnection$" + id + "$" + index). The encoding only
// obfuscates; cursors carry no integrity protection and are not stable across
// changes to ordering or filters.
package cursor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	separator = "$"
	prefix    = "arrayconnection" + separator
)

// ErrInvalidCursor is wrapped by every DecodeError.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the decoded form of a connection cursor.
type Cursor struct {
	ID    string
	Index int
}

// DecodeError reports a malformed cursor.
type DecodeError struct {
	Cursor string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid cursor %q: %s: %v", e.Cursor, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid cursor %q: %s", e.Cursor, e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidCursor, e.Err}
	}
	return []error{ErrInvalidCursor}
}

// Encode builds the cursor for the record id at position index.
func Encode(id string, index int) string {
	return base64.StdEncoding.EncodeToString([]byte(prefix + id + separator + strconv.Itoa(index)))
}

// Decode recovers the id and index from a cursor produced by Encode.
func Decode(s string) (Cursor, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, &DecodeError{Cursor: s, Reason: "not base64", Err: err}
	}
	body := string(raw)
	if !strings.HasPrefix(body, prefix) {
		return Cursor{}, &DecodeError{Cursor: s, Reason: "missing prefix"}
	}
	body = body[len(prefix):]

	// The index is numeric, so the last separator splits even when the id holds one.
	sep := strings.LastIndex(body, separator)
	if sep < 0 {
		return Cursor{}, &DecodeError{Cursor: s, Reason: "missing separator"}
	}
	index, err := strconv.Atoi(body[sep+1:])
	if err != nil {
		return Cursor{}, &DecodeError{Cursor: s, Reason: "index is not an integer", Err: err}
	}
	if index < 0 {
		return Cursor{}, &DecodeError{Cursor: s, Reason: "index is negative"}
	}
	return Cursor{ID: body[:sep], Index: index}, nil
}

// DecodeOptional decodes s when it is non-empty. Tolerant callers treat a
// malformed cursor like an absent one; everyone else gets the DecodeError.
func DecodeOptional(s string, tolerant bool) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	c, err := Decode(s)
	if err != nil {
		if tolerant {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
