package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultTags are the tag names accepted when none are configured.
var DefaultTags = []string{"ignored", "critical", "experimental"}

// ErrTagNotAllowed is returned when a tag is not in the configured allowlist.
var ErrTagNotAllowed = errors.New("tag not allowed")

// Tags is an ordered, de-duplicated set of lower-cased tag names stored as a JSON array.
type Tags []string

// NormalizeTag trims and lower-cases a tag name.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// Has reports whether tag is present.
func (t Tags) Has(tag string) bool {
	tag = NormalizeTag(tag)
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// Add appends tag when absent. Empty tags are ignored.
func (t *Tags) Add(tag string) {
	tag = NormalizeTag(tag)
	if tag == "" || t.Has(tag) {
		return
	}
	*t = append(*t, tag)
}

// Remove drops tag when present.
func (t *Tags) Remove(tag string) {
	tag = NormalizeTag(tag)
	out := (*t)[:0]
	for _, v := range *t {
		if v != tag {
			out = append(out, v)
		}
	}
	*t = out
}

// Clone returns an independent copy.
func (t Tags) Clone() Tags {
	if t == nil {
		return Tags{}
	}
	return append(Tags{}, t...)
}

// Strings returns the tags as a plain slice.
func (t Tags) Strings() []string {
	return []string(t.Clone())
}

// NewTags builds a normalized set from raw values, checking each against allowed when it is non-empty.
func NewTags(raw []string, allowed []string) (Tags, error) {
	out := Tags{}
	for _, r := range raw {
		tag := NormalizeTag(r)
		if tag == "" {
			continue
		}
		if len(allowed) > 0 && !Tags(allowed).Has(tag) {
			return nil, fmt.Errorf("%w: %q", ErrTagNotAllowed, tag)
		}
		out.Add(tag)
	}
	return out, nil
}

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	b, err := json.Marshal(t.Clone())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan tags: unsupported type %T", src)
	}
	var vals []string
	if err := json.Unmarshal(raw, &vals); err != nil {
		return fmt.Errorf("scan tags: %w", err)
	}
	out := Tags{}
	for _, v := range vals {
		out.Add(v)
	}
	*t = out
	return nil
}
