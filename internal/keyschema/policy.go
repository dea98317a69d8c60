package keyschema

import "strings"

// Placement says where a field's value lives.
type Placement int

const (
	// OutOfBand keeps the value in the key-value pair's value.
	OutOfBand Placement = iota
	// Inline embeds the value in the key as fieldname:value.
	Inline
)

// Kind is the value type of a field.
type Kind int

const (
	Text Kind = iota
	Binary
	Flag
	List
)

// Field is one row of a Policy.
type Field struct {
	Placement Placement
	Kind      Kind
	// Escaped marks out-of-band text values stored in escaped form.
	// Inline values are always escaped.
	Escaped bool
}

// Policy maps field names (the typename for list fields) to their
// encoding. Unknown names fall back to out-of-band text, or to an inline
// flag for names carrying the is_ prefix.
type Policy map[string]Field

const flagPrefix = "is_"

func (p Policy) lookup(name string) Field {
	if f, ok := p[name]; ok {
		return f
	}
	if strings.HasPrefix(name, flagPrefix) {
		return Field{Placement: Inline, Kind: Flag}
	}
	return Field{Placement: OutOfBand, Kind: Text}
}
