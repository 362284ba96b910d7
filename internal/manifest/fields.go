package manifest

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// fieldAliases lists the keys a member may appear under, highest precedence
// first.
type fieldAliases []string

var (
	startURLAliases        = fieldAliases{"start_url", "homepage"}
	langAliases            = fieldAliases{"lang", "default_locale"}
	densityAliases         = fieldAliases{"density"}
	colorAliases           = fieldAliases{"color"}
	purposeAliases         = fieldAliases{"purpose"}
	backgroundColorAliases = fieldAliases{"background_color", "background-color", "backgroundColor"}
	themeColorAliases      = fieldAliases{"theme_color", "theme-color", "themeColor"}
	borderRadiusAliases    = fieldAliases{"border_radius", "border-radius", "borderRadius"}
)

// lookup returns the first alias holding a non-blank string, trimmed.
func (a fieldAliases) lookup(obj map[string]any) (string, bool) {
	for _, key := range a {
		if s, ok := stringMember(obj, key); ok {
			return s, true
		}
	}
	return "", false
}

// lookupLoose behaves like lookup, then falls back to keys that match an
// alias once case and separators are ignored ("Theme-Color", "THEMECOLOR").
func (a fieldAliases) lookupLoose(obj map[string]any) (string, bool) {
	if s, ok := a.lookup(obj); ok {
		return s, true
	}
	raw, ok := a.rawLoose(obj)
	if !ok {
		return "", false
	}
	return stringValue(raw)
}

func (a fieldAliases) rawLoose(obj map[string]any) (any, bool) {
	for _, key := range a {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
	}
	wanted := make(map[string]struct{}, len(a))
	for _, key := range a {
		wanted[looseKey(key)] = struct{}{}
	}
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := wanted[looseKey(key)]; ok && obj[key] != nil {
			return obj[key], true
		}
	}
	return nil, false
}

func looseKey(key string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
}

// stringMember returns obj[key] trimmed when it is a non-blank string.
func stringMember(obj map[string]any, key string) (string, bool) {
	return stringValue(obj[key])
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// trimmedString returns obj[key] trimmed, or "" for absent and non-string
// values.
func trimmedString(obj map[string]any, key string) string {
	s, _ := stringMember(obj, key)
	return s
}

// collapseSpace trims s and folds internal whitespace runs to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseDensity accepts a JSON number or numeric string. Non-positive,
// non-finite and unparsable values yield 0, meaning "unset".
func parseDensity(v any) float64 {
	var f float64
	switch d := v.(type) {
	case float64:
		f = d
	case json.Number:
		parsed, err := d.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	return f
}

// cloneValue deep-copies decoded JSON so normalized output never aliases the
// caller's maps or slices.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
