// Package store is the gateway's entity store (C2): a repository per entity
// type in spec.md §3, backed by database/sql, with uniform create/get/list/
// update/delete semantics (spec.md §4.2) and a single serializable
// transaction per mutation.
package store

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit opaque entity identifier. Per spec.md §3 ("128-bit opaque
// values, hex-encoded, no hyphens on the wire"), its wire and SQL text
// representation is lowercase hex without uuid.String()'s hyphens.
type ID [16]byte

// NewID generates a fresh random ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses a 32-character hex string into an ID.
func ParseID(s string) (ID, error) {
	if len(s) != 32 {
		return ID{}, fmt.Errorf("store: invalid id length %d, want 32", len(s))
	}
	var id ID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ID{}, fmt.Errorf("store: invalid id %q: %w", s, err)
	}
	return id, nil
}

// MustParseID is ParseID, panicking on error; for constants/tests only.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the hex, no-hyphen wire form.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value (unset).
func (id ID) IsZero() bool {
	return id == ID{}
}

// Value implements driver.Valuer so an ID can be written directly via
// database/sql as its hex text form.
func (id ID) Value() (driver.Value, error) {
	return id.String(), nil
}

// Scan implements sql.Scanner, accepting the hex text form produced by Value.
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseID(v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		parsed, err := ParseID(string(v))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case nil:
		*id = ID{}
		return nil
	default:
		return fmt.Errorf("store: cannot scan %T into ID", src)
	}
}
