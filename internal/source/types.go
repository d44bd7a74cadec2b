// Package source is the boundary to the paginated shop order API. It fetches
// one page per call and classifies failures; retry and pagination policy live
// with the extractor.
package source

import "time"

// Window is a half-open time interval [Start, End) bounding one extraction
// sweep.
type Window struct {
	Start time.Time
	End   time.Time
}

// Account identifies one shop and carries everything needed to call its API.
type Account struct {
	Key        string
	Name       string
	ShopURL    string
	Token      string
	APIVersion string
}

// Record is one order as returned by the API. Key is the order name, the
// natural key used for reconciliation downstream. CreatedAt keeps the raw
// timestamp string; normalization happens in the transformer.
type Record struct {
	Key         string
	CreatedAt   string
	Account     string
	AccountName string
	Attrs       Attrs
}

// Page is one bounded response from the API.
type Page struct {
	Records    []Record
	NextCursor string
	HasMore    bool
}

// Attrs is the nested attribute tree of a record. Accessors return typed
// defaults on absence or shape mismatch, never panic.
type Attrs map[string]any

// Str returns the string at path, or "".
func (a Attrs) Str(path ...string) string {
	v := a.value(path)
	s, _ := v.(string)
	return s
}

// Bool returns the bool at path, or false.
func (a Attrs) Bool(path ...string) bool {
	v := a.value(path)
	b, _ := v.(bool)
	return b
}

// Int returns the integer at path, or 0. JSON decoding yields float64 for
// numbers, so both forms are accepted.
func (a Attrs) Int(path ...string) int {
	switch v := a.value(path).(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Map returns the nested object at path, or an empty Attrs.
func (a Attrs) Map(path ...string) Attrs {
	v := a.value(path)
	m, ok := v.(map[string]any)
	if !ok {
		return Attrs{}
	}
	return Attrs(m)
}

// List returns the objects in the array at path; non-object elements are
// skipped.
func (a Attrs) List(path ...string) []Attrs {
	v := a.value(path)
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Attrs, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Attrs(m))
		}
	}
	return out
}

// StrList returns the strings in the array at path; non-string elements are
// skipped.
func (a Attrs) StrList(path ...string) []string {
	v := a.value(path)
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a Attrs) value(path []string) any {
	if len(path) == 0 {
		return nil
	}
	current := map[string]any(a)
	for i, key := range path {
		v, ok := current[key]
		if !ok {
			return nil
		}
		if i == len(path)-1 {
			return v
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}
