// Package keyschema maps hierarchical, versioned documents onto a flat,
// ordered key space and back.
//
// Below a document prefix every key is a '/'-joined path. An optional
// ver:<version> segment opens a version partition; the last segment is the
// field. A field is either bare (value in the pair's value) or
// name:literal (value in the key). Names prefixed with is_ are booleans
// and sub@type segments accumulate {sub: value} items into the list
// stored under type. Literals embedded in keys are escaped with Escape.
package keyschema

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	sep           = "/"
	versionPrefix = "ver:"
	listSigil     = "@"
	inlineSep     = ":"
)

var (
	// ErrMalformedKey is returned when a key doesn't follow the grammar.
	ErrMalformedKey = errors.New("malformed key")
	// ErrInvalidField is returned when a document can't be encoded.
	ErrInvalidField = errors.New("invalid field")
)

// Pair is a single flat key-value pair.
type Pair struct {
	Key   string
	Value []byte
}

// Item is one element of a list field.
type Item struct {
	Key   string
	Value []byte
}

// Fields holds the values of one level of a document.
type Fields struct {
	Values map[string][]byte
	Flags  map[string]bool
	Lists  map[string][]Item
}

// NewFields returns an empty Fields with all maps allocated.
func NewFields() Fields {
	return Fields{
		Values: map[string][]byte{},
		Flags:  map[string]bool{},
		Lists:  map[string][]Item{},
	}
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return len(f.Values) == 0 && len(f.Flags) == 0 && len(f.Lists) == 0
}

// Document is a decoded key range: top-level fields plus one Fields per
// version partition, keyed by the unescaped version string.
type Document struct {
	Fields
	Versions map[string]Fields
}

// NewDocument returns an empty Document.
func NewDocument() Document {
	return Document{Fields: NewFields(), Versions: map[string]Fields{}}
}

// HasVersion reports whether the version partition was populated.
func (d Document) HasVersion(version string) bool {
	v, ok := d.Versions[version]
	return ok && !v.Empty()
}

// Empty reports whether the document has neither fields nor versions.
func (d Document) Empty() bool {
	return d.Fields.Empty() && len(d.Versions) == 0
}

// Encode produces the flat key set for doc below prefix. Prefix must end
// with a separator. Pair order is unspecified.
func Encode(prefix string, doc Document, policy Policy) ([]Pair, error) {
	pairs, err := encodeFields(nil, prefix, doc.Fields, policy)
	if err != nil {
		return nil, err
	}
	for version, fields := range doc.Versions {
		if version == "" {
			return nil, fmt.Errorf("%w: empty version", ErrInvalidField)
		}
		base := prefix + versionPrefix + Escape(version) + sep
		if pairs, err = encodeFields(pairs, base, fields, policy); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

func encodeFields(pairs []Pair, base string, f Fields, policy Policy) ([]Pair, error) {
	for name, value := range f.Values {
		if err := checkName(name); err != nil {
			return nil, err
		}
		if strings.HasPrefix(name, flagPrefix) {
			return nil, fmt.Errorf("%w: %q carries the flag prefix", ErrInvalidField, name)
		}
		pairs = append(pairs, encodeValue(base+name, policy.lookup(name), value))
	}

	for name, set := range f.Flags {
		if err := checkName(name); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(name, flagPrefix) {
			return nil, fmt.Errorf("%w: flag %q lacks the %s prefix", ErrInvalidField, name, flagPrefix)
		}
		literal := "0"
		if set {
			literal = "1"
		}
		pairs = append(pairs, Pair{Key: base + name + inlineSep + literal})
	}

	for typename, items := range f.Lists {
		if err := checkName(typename); err != nil {
			return nil, err
		}
		spec := policy.lookup(typename)
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			if err := checkName(item.Key); err != nil {
				return nil, err
			}
			p := encodeValue(base+item.Key+listSigil+typename, spec, item.Value)
			if _, dup := seen[p.Key]; dup {
				return nil, fmt.Errorf("%w: duplicate item %q in %q", ErrInvalidField, item.Key, typename)
			}
			seen[p.Key] = struct{}{}
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

func encodeValue(key string, spec Field, value []byte) Pair {
	switch {
	case spec.Placement == Inline && spec.Kind != Binary:
		return Pair{Key: key + inlineSep + Escape(string(value))}
	case spec.Escaped && spec.Kind != Binary:
		return Pair{Key: key, Value: []byte(Escape(string(value)))}
	default:
		return Pair{Key: key, Value: clone(value)}
	}
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, sep+inlineSep+listSigil) {
		return fmt.Errorf("%w: %q", ErrInvalidField, name)
	}
	return nil
}

// Decode rebuilds the document stored below prefix. Pairs are sorted by key
// first when they aren't already, since list order follows key order.
// When versionFilter is set, pairs of other version partitions are dropped
// while top-level fields are kept; use Document.HasVersion to tell whether
// the requested version exists.
func Decode(prefix string, pairs []Pair, policy Policy, versionFilter string) (Document, error) {
	if !sort.SliceIsSorted(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key }) {
		sorted := make([]Pair, len(pairs))
		copy(sorted, pairs)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
		pairs = sorted
	}

	doc := NewDocument()
	for _, p := range pairs {
		rest, ok := strings.CutPrefix(p.Key, prefix)
		if !ok {
			return Document{}, fmt.Errorf("%w: %q is outside %q", ErrMalformedKey, p.Key, prefix)
		}

		target := &doc.Fields
		parts := strings.Split(rest, sep)
		switch len(parts) {
		case 1:
		case 2:
			escaped, ok := strings.CutPrefix(parts[0], versionPrefix)
			if !ok || escaped == "" {
				return Document{}, fmt.Errorf("%w: %q", ErrMalformedKey, p.Key)
			}
			version := Unescape(escaped)
			if versionFilter != "" && version != versionFilter {
				continue
			}
			fields, ok := doc.Versions[version]
			if !ok {
				fields = NewFields()
				doc.Versions[version] = fields
			}
			target = &fields
		default:
			return Document{}, fmt.Errorf("%w: %q", ErrMalformedKey, p.Key)
		}

		if err := decodeField(target, parts[len(parts)-1], p.Value, policy); err != nil {
			return Document{}, fmt.Errorf("%w: %q", err, p.Key)
		}
	}
	return doc, nil
}

func decodeField(target *Fields, segment string, raw []byte, policy Policy) error {
	name, literal, inline := strings.Cut(segment, inlineSep)
	if name == "" {
		return ErrMalformedKey
	}

	if sub, typename, isItem := strings.Cut(name, listSigil); isItem {
		if sub == "" || typename == "" {
			return ErrMalformedKey
		}
		value := decodeValue(policy.lookup(typename), raw, literal, inline)
		target.Lists[typename] = append(target.Lists[typename], Item{Key: sub, Value: value})
		return nil
	}

	if strings.HasPrefix(name, flagPrefix) {
		v := raw
		if inline {
			v = []byte(literal)
		}
		target.Flags[name] = truthy(v)
		return nil
	}

	target.Values[name] = decodeValue(policy.lookup(name), raw, literal, inline)
	return nil
}

func decodeValue(spec Field, raw []byte, literal string, inline bool) []byte {
	switch {
	case inline:
		return toBytes(Unescape(literal))
	case spec.Escaped && spec.Kind != Binary:
		return toBytes(Unescape(string(raw)))
	default:
		return clone(raw)
	}
}

// truthy is the flag coercion rule: empty and "0" are false, anything
// else is true.
func truthy(v []byte) bool {
	return len(v) > 0 && !bytes.Equal(v, []byte("0"))
}

func toBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
