package registry

import (
	"fmt"
	"time"
)

// Args are the arguments attached to a function reference in a plan
type Args map[string]any

// String returns a string argument or def when unset
func (a Args) String(key, def string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	return s, nil
}

// Int returns an integer argument or def when unset
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("argument %q: %v is not an integer", key, n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("argument %q: expected integer, got %T", key, v)
}

// Duration returns a duration argument given as a Go duration string
func (a Args) Duration(key string, def time.Duration) (time.Duration, error) {
	s, err := a.String(key, "")
	if err != nil {
		return 0, err
	}
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return d, nil
}

// Strings returns a list of strings
func (a Args) Strings(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch l := v.(type) {
	case []string:
		return l, nil
	case []any:
		out := make([]string, len(l))
		for i, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q[%d]: expected string, got %T", key, i, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("argument %q: expected list of strings, got %T", key, v)
}
