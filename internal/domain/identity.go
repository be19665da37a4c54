package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Identity is the opaque key of a voice participant. It is always supplied externally.
type Identity string

// SeverityTag classifies a flagged identity.
type SeverityTag string

const (
	Primary   SeverityTag = "red"
	Secondary SeverityTag = "yellow"
)

// Valid reports whether t is one of the known tags.
func (t SeverityTag) Valid() bool {
	return t == Primary || t == Secondary
}

// ParseSeverityTag accepts the wire values "red" and "yellow".
func ParseSeverityTag(s string) (SeverityTag, error) {
	t := SeverityTag(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTag, s)
	}
	return t, nil
}

// Mapping is the shared dataset: identity -> tag.
type Mapping map[Identity]SeverityTag

// Clone returns a copy that shares nothing with m.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for id, tag := range m {
		out[id] = tag
	}
	return out
}

// Stats counts tags by severity.
type Stats struct {
	Total     int `json:"total"`
	Primary   int `json:"red"`
	Secondary int `json:"yellow"`
}

// Stats summarizes m.
func (m Mapping) Stats() Stats {
	var s Stats
	for _, tag := range m {
		switch tag {
		case Primary:
			s.Primary++
		case Secondary:
			s.Secondary++
		}
	}
	s.Total = len(m)
	return s
}

// EncodeMapping serializes m as a JSON object.
func EncodeMapping(m Mapping) ([]byte, error) {
	if m == nil {
		m = Mapping{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mapping: %w", err)
	}
	return data, nil
}

// DecodeMapping parses a JSON object of identity -> tag. Empty and null payloads
// yield an empty mapping; entries with unknown tags are dropped.
func DecodeMapping(data []byte) (Mapping, error) {
	if len(data) == 0 {
		return Mapping{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}

	out := make(Mapping, len(raw))
	for id, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			continue
		}
		if tag := SeverityTag(s); tag.Valid() && id != "" {
			out[Identity(id)] = tag
		}
	}
	return out, nil
}

// IdentitySet is an unordered set of identities.
type IdentitySet map[Identity]struct{}

// NewIdentitySet builds a set from ids.
func NewIdentitySet(ids ...Identity) IdentitySet {
	s := make(IdentitySet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IdentitySet) Has(id Identity) bool {
	_, ok := s[id]
	return ok
}

// Minus returns the members of s that are not in other, sorted.
func (s IdentitySet) Minus(other IdentitySet) []Identity {
	var out []Identity
	for id := range s {
		if !other.Has(id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Sorted returns the members in ascending order.
func (s IdentitySet) Sorted() []Identity {
	out := make([]Identity, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
