package types

import (
	"fmt"
	"regexp"
)

// Filter selects which declarations take part in a run. Pass is true when
// the declaration or any of its descendants match.
type Filter interface {
	Pass(t *Test, fullName string) bool
	// IsExplicitMatch is true only when the declaration itself or one of its
	// descendants was named, never when it merely sits below a match
	IsExplicitMatch(t *Test, fullName string) bool
	IsEmpty() bool
}

type emptyFilter struct{}

func (emptyFilter) Pass(*Test, string) bool            { return true }
func (emptyFilter) IsExplicitMatch(*Test, string) bool { return false }
func (emptyFilter) IsEmpty() bool                      { return true }

// EmptyFilter lets every declaration through
var EmptyFilter Filter = emptyFilter{}

// NameFilter matches full names against a regular expression
type NameFilter struct {
	re *regexp.Regexp
}

// NewNameFilter compiles pattern into a filter. An empty pattern yields EmptyFilter.
func NewNameFilter(pattern string) (Filter, error) {
	if pattern == "" {
		return EmptyFilter, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
	}
	return &NameFilter{re: re}, nil
}

func (f *NameFilter) IsEmpty() bool { return false }

// Pass is true when the full name matches, or any descendant matches
func (f *NameFilter) Pass(t *Test, fullName string) bool {
	return f.IsExplicitMatch(t, fullName)
}

// IsExplicitMatch is true when the full name or a descendant's full name matches
func (f *NameFilter) IsExplicitMatch(t *Test, fullName string) bool {
	if f.re.MatchString(fullName) {
		return true
	}
	for _, c := range t.Children {
		if f.IsExplicitMatch(c, JoinName(fullName, c.Name)) {
			return true
		}
	}
	return false
}

// Match reports whether the name itself matches, ignoring descendants
func (f *NameFilter) Match(fullName string) bool {
	return f.re.MatchString(fullName)
}

// ForChildren returns the filter children of the named suite are checked
// against. A suite whose own name matched runs all of its children.
func ForChildren(filter Filter, t *Test, fullName string) Filter {
	if filter == nil || filter.IsEmpty() {
		return EmptyFilter
	}
	if nf, ok := filter.(*NameFilter); ok && nf.Match(fullName) {
		return EmptyFilter
	}
	return filter
}
