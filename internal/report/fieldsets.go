package report

import (
	"cmp"
	"slices"
	"strconv"

	"tasknotifier/internal/types"
)

// SystemInfoFieldset collects top-level values that are not mappings.
const SystemInfoFieldset = "system_info"

// Row is one name/value line of a fieldset. Both sides are already
// passed through Inspect.
type Row struct {
	Name  string
	Value string
}

// Fieldset groups the rows that came from one top-level key.
type Fieldset struct {
	Name string
	Rows []Row
}

// sectionOrder puts the sections a reader needs first.
var sectionOrder = map[string]int{
	types.SectionExceptionData: 0,
	types.SectionRequestData:   1,
	types.SectionData:          2,
	types.SectionParameters:    3,
	types.SectionSession:       4,
	types.SectionCookies:       5,
	types.SectionHeaders:       6,
	types.SectionBasicInfo:     7,
}

// Fieldsets groups params for display. Each top-level mapping becomes a
// fieldset; deeper mappings are flattened into dotted row names. Top-level
// scalars land in SystemInfoFieldset. Rows are sorted by name.
func Fieldsets(params map[string]any) []Fieldset {
	groups := map[string][]Row{}

	for key, value := range params {
		if m, ok := asMap(value); ok {
			var rows []Row
			flatten(m, "", &rows)
			if len(rows) > 0 {
				groups[key] = append(groups[key], rows...)
			}
			continue
		}
		groups[SystemInfoFieldset] = append(groups[SystemInfoFieldset], Row{
			Name:  strconv.Quote(key),
			Value: Inspect(value),
		})
	}

	out := make([]Fieldset, 0, len(groups))
	for name, rows := range groups {
		slices.SortFunc(rows, func(a, b Row) int { return cmp.Compare(a.Name, b.Name) })
		out = append(out, Fieldset{Name: name, Rows: rows})
	}
	slices.SortFunc(out, func(a, b Fieldset) int {
		return cmp.Or(cmp.Compare(rank(a.Name), rank(b.Name)), cmp.Compare(a.Name, b.Name))
	})
	return out
}

func rank(name string) int {
	if r, ok := sectionOrder[name]; ok {
		return r
	}
	if name == SystemInfoFieldset {
		return len(sectionOrder) + 1
	}
	return len(sectionOrder)
}

func flatten(m map[string]any, prefix string, rows *[]Row) {
	for k, v := range m {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if nested, ok := asMap(v); ok {
			flatten(nested, name, rows)
			continue
		}
		*rows = append(*rows, Row{Name: strconv.Quote(name), Value: Inspect(v)})
	}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m, true
	}
	return nil, false
}
