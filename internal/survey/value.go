package survey

import (
	"database/sql"
	"strconv"
)

// Value is the stored shape of an answer. Exactly one of Rating, Text,
// Bool or NotApplicable.
type Value interface {
	isValue()
	String() string
}

type Rating int

type Text string

type Bool bool

type NotApplicable struct{}

func (Rating) isValue()        {}
func (Text) isValue()          {}
func (Bool) isValue()          {}
func (NotApplicable) isValue() {}

func (r Rating) String() string { return strconv.Itoa(int(r)) }
func (t Text) String() string   { return string(t) }

func (b Bool) String() string {
	if b {
		return "yes"
	}
	return "no"
}

func (NotApplicable) String() string { return "N/A" }

// Columns is the flat storage form of a Value
type Columns struct {
	Rating sql.NullInt64
	Text   sql.NullString
	Bool   sql.NullBool
	NA     bool
}

// ToColumns flattens v onto the four nullable response columns
func ToColumns(v Value) Columns {
	var c Columns
	switch v := v.(type) {
	case Rating:
		c.Rating = sql.NullInt64{Int64: int64(v), Valid: true}
	case Text:
		c.Text = sql.NullString{String: string(v), Valid: true}
	case Bool:
		c.Bool = sql.NullBool{Bool: bool(v), Valid: true}
	case NotApplicable:
		c.NA = true
	}
	return c
}

// FromColumns rebuilds a Value; a row with no populated column reads back as empty Text
func FromColumns(c Columns) Value {
	switch {
	case c.NA:
		return NotApplicable{}
	case c.Rating.Valid:
		return Rating(c.Rating.Int64)
	case c.Bool.Valid:
		return Bool(c.Bool.Bool)
	default:
		return Text(c.Text.String)
	}
}
