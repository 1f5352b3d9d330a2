package predicates

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paneq/meta-search/pkg/schema"
)

// Predicate describes one comparison operator that can be appended to an
// attribute name in a search parameter key, e.g. the "contains" in
// "title_contains". Predicates are matched by longest suffix, so
// "greater_than_or_equal_to" wins over "greater_than".
type Predicate struct {
	Name     string   // canonical long name
	Aliases  []string // short forms accepted in parameter keys
	Operator string   // SQL comparison operator
	Format   string   // value wrapping for LIKE-style operators, e.g. "%%%v%%"
	Unary    bool     // takes no bound value (NULL checks)
	Fixed    any      // non-nil: bound value is fixed, parameter value is a toggle
}

// NeedsValue reports whether the predicate binds the parameter value.
// Unary and fixed-value predicates treat the parameter value as an on/off
// toggle instead.
func (p *Predicate) NeedsValue() bool {
	return !p.Unary && p.Fixed == nil
}

// All registered predicates. One predicate per attribute key; combinations
// always AND together (spec'd form semantics, not a general query language).
var registry = []*Predicate{
	{Name: "equals", Aliases: []string{"eq"}, Operator: "="},
	{Name: "does_not_equal", Aliases: []string{"ne", "not_eq"}, Operator: "!="},
	{Name: "contains", Aliases: []string{"cont"}, Operator: "LIKE", Format: "%%%v%%"},
	{Name: "does_not_contain", Aliases: []string{"not_cont"}, Operator: "NOT LIKE", Format: "%%%v%%"},
	{Name: "starts_with", Aliases: []string{"sw"}, Operator: "LIKE", Format: "%v%%"},
	{Name: "ends_with", Aliases: []string{"ew"}, Operator: "LIKE", Format: "%%%v"},
	{Name: "greater_than", Aliases: []string{"gt"}, Operator: ">"},
	{Name: "less_than", Aliases: []string{"lt"}, Operator: "<"},
	{Name: "greater_than_or_equal_to", Aliases: []string{"gte"}, Operator: ">="},
	{Name: "less_than_or_equal_to", Aliases: []string{"lte"}, Operator: "<="},
	{Name: "in", Operator: "IN"},
	{Name: "not_in", Operator: "NOT IN"},
	{Name: "is_null", Operator: "IS NULL", Unary: true},
	{Name: "is_not_null", Operator: "IS NOT NULL", Unary: true},
	{Name: "is_true", Operator: "=", Fixed: true},
	{Name: "is_false", Operator: "=", Fixed: false},
}

// suffixes maps every accepted name and alias to its predicate, ordered
// longest-first so suffix matching is unambiguous.
var suffixes []suffixEntry

type suffixEntry struct {
	name string
	pred *Predicate
}

func init() {
	for _, p := range registry {
		suffixes = append(suffixes, suffixEntry{p.Name, p})
		for _, a := range p.Aliases {
			suffixes = append(suffixes, suffixEntry{a, p})
		}
	}
	sort.Slice(suffixes, func(i, j int) bool {
		return len(suffixes[i].name) > len(suffixes[j].name)
	})
}

// Lookup returns the predicate registered under the given name or alias.
func Lookup(name string) (*Predicate, bool) {
	for _, e := range suffixes {
		if e.name == name {
			return e.pred, true
		}
	}
	return nil, false
}

// MatchSuffix splits a parameter key into its base (attribute or
// association path part) and its predicate. Returns false when the key
// carries no recognized predicate suffix.
func MatchSuffix(key string) (base string, pred *Predicate, ok bool) {
	for _, e := range suffixes {
		suffix := "_" + e.name
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			return key[:len(key)-len(suffix)], e.pred, true
		}
	}
	return "", nil, false
}

// Clause is one accumulated predicate: a comparison against one or more
// attributes (ORed together) reached through an association path from the
// root entity. Custom search methods may instead supply a raw SQL fragment
// with bound arguments.
type Clause struct {
	Path       []string
	Attributes []string
	Predicate  *Predicate
	Value      any

	Raw  string
	Args []any
}

// Truthy interprets permissive form values for toggle-style predicates such
// as is_null: "1", "true", "yes" and their typed equivalents enable the
// predicate, anything else drops the parameter.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "t", "on":
			return true
		}
		return false
	default:
		return value != nil
	}
}

// Coerce converts a raw parameter value to the column's declared type.
// IN-style predicates accept slices or comma-separated strings and coerce
// each element. A coercion failure means the parameter is dropped by the
// builder, matching the treatment of unauthorized keys.
func Coerce(col schema.Column, pred *Predicate, value any) (any, error) {
	if pred.Operator == "IN" || pred.Operator == "NOT IN" {
		return coerceList(col, value)
	}
	return coerceScalar(col, value)
}

func coerceList(col schema.Column, value any) ([]any, error) {
	var elems []any
	switch v := value.(type) {
	case []any:
		elems = v
	case []string:
		for _, s := range v {
			elems = append(elems, s)
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			elems = append(elems, strings.TrimSpace(s))
		}
	default:
		elems = []any{value}
	}

	out := make([]any, 0, len(elems))
	for _, e := range elems {
		c, err := coerceScalar(col, e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty value list for column %s", col.Name)
	}
	return out, nil
}

func coerceScalar(col schema.Column, value any) (any, error) {
	switch col.Type {
	case schema.TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	case schema.TypeInteger:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid integer %q for column %s", v, col.Name)
			}
			return n, nil
		}
	case schema.TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid float %q for column %s", v, col.Name)
			}
			return f, nil
		}
	case schema.TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "t", "yes", "y", "on":
				return true, nil
			case "0", "false", "f", "no", "n", "off":
				return false, nil
			}
			return nil, fmt.Errorf("invalid boolean %q for column %s", v, col.Name)
		}
	case schema.TypeTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			s := strings.TrimSpace(v)
			for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts, nil
				}
			}
			return nil, fmt.Errorf("invalid timestamp %q for column %s", v, col.Name)
		}
	}
	return nil, fmt.Errorf("cannot coerce %T to %s for column %s", value, col.Type, col.Name)
}
