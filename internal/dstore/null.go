// Package dstore provides small database-scannable helper types shared
// across the storage and model packages, mirroring libs/datastore/models.go's
// nullable-column helpers.
package dstore

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// NullString wraps sql.NullString with JSON marshaling that omits the field
// entirely when not valid, rather than emitting {"String":"","Valid":false}.
type NullString struct {
	String string
	Valid  bool
}

// NewNullString builds a valid NullString, or an invalid one if s is empty.
func NewNullString(s string) NullString {
	return NullString{String: s, Valid: s != ""}
}

func (n *NullString) Scan(value interface{}) error {
	if value == nil {
		n.String, n.Valid = "", false
		return nil
	}
	switch v := value.(type) {
	case string:
		n.String, n.Valid = v, true
	case []byte:
		n.String, n.Valid = string(v), true
	default:
		return errors.New("dstore: NullString.Scan: unsupported type")
	}
	return nil
}

func (n NullString) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.String, nil
}

func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.String, n.Valid = "", false
		return nil
	}
	if err := json.Unmarshal(data, &n.String); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
