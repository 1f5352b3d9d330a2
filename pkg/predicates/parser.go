package predicates

import (
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/paneq/meta-search/pkg/schema"
)

// Parsed is the resolved form of a search parameter key: the association
// path walked from the root, the terminal entity owning the attributes, the
// attribute names (more than one when the key used an _or_ union), and the
// predicate.
type Parsed struct {
	Path       []string
	Entity     *schema.EntityType
	Attributes []string
	Predicate  *Predicate
}

// SortSpec is the resolved form of a sort parameter value such as
// "comments_created_at.desc".
type SortSpec struct {
	Path       []string
	Entity     *schema.EntityType
	Attribute  string
	Descending bool
}

const (
	defaultMemoSize = 4096
	defaultMemoTTL  = time.Hour
)

// Parser resolves parameter keys against entity descriptors. Parse results
// depend only on the static schema, never on the search context, so they
// are memoized in an LRU shared across requests. Authorization is evaluated
// separately, per context, by the builder.
type Parser struct {
	memo *lru.LRU[string, memoEntry]
}

type memoEntry struct {
	parsed Parsed
	ok     bool
}

// NewParser creates a parser with the default memoization size and TTL.
func NewParser() *Parser {
	return NewParserSize(defaultMemoSize, defaultMemoTTL)
}

// NewParserSize creates a parser with an explicit memo capacity and TTL.
// A size of 0 disables memoization.
func NewParserSize(size int, ttl time.Duration) *Parser {
	p := &Parser{}
	if size > 0 {
		p.memo = lru.NewLRU[string, memoEntry](size, nil, ttl)
	}
	return p
}

// Parse resolves a parameter key like "comments_created_at_greater_than"
// against the root entity. Returns false for keys with no predicate suffix
// or no resolvable attribute path.
func (p *Parser) Parse(root *schema.EntityType, key string) (Parsed, bool) {
	memoKey := root.Name + "\x00" + key
	if p.memo != nil {
		if e, ok := p.memo.Get(memoKey); ok {
			return e.parsed, e.ok
		}
	}

	parsed, ok := p.parse(root, key)
	if p.memo != nil {
		p.memo.Add(memoKey, memoEntry{parsed: parsed, ok: ok})
	}
	return parsed, ok
}

func (p *Parser) parse(root *schema.EntityType, key string) (Parsed, bool) {
	base, pred, ok := MatchSuffix(key)
	if !ok {
		return Parsed{}, false
	}

	path, entity, attrs, ok := resolvePath(root, base, 0)
	if !ok {
		return Parsed{}, false
	}

	return Parsed{
		Path:       path,
		Entity:     entity,
		Attributes: attrs,
		Predicate:  pred,
	}, true
}

// ParseSort resolves a sort parameter value such as "title.asc" or
// "comments_created_at.desc". A missing direction suffix defaults to
// ascending. Only single attributes are sortable; _or_ unions are not.
func (p *Parser) ParseSort(root *schema.EntityType, value string) (SortSpec, bool) {
	base := value
	desc := false
	if i := strings.LastIndex(value, "."); i > 0 {
		switch strings.ToLower(value[i+1:]) {
		case "asc":
			base = value[:i]
		case "desc":
			base = value[:i]
			desc = true
		default:
			return SortSpec{}, false
		}
	}

	path, entity, attrs, ok := resolvePath(root, base, 0)
	if !ok || len(attrs) != 1 {
		return SortSpec{}, false
	}

	return SortSpec{
		Path:       path,
		Entity:     entity,
		Attribute:  attrs[0],
		Descending: desc,
	}, true
}

// maxPathDepth bounds association traversal; parameter keys deeper than
// this are treated as unresolvable.
const maxPathDepth = 8

// resolvePath walks the association graph greedily from entity. Attribute
// resolution on the current entity wins over association traversal, and a
// whole-name column match wins over an _or_ split, so column names that
// themselves contain "_or_" resolve correctly.
func resolvePath(entity *schema.EntityType, base string, depth int) ([]string, *schema.EntityType, []string, bool) {
	if depth > maxPathDepth {
		return nil, nil, nil, false
	}

	if attrs, ok := splitAttributes(entity, base); ok {
		return nil, entity, attrs, true
	}

	for _, name := range associationsByLength(entity) {
		if !strings.HasPrefix(base, name+"_") {
			continue
		}
		assoc, _ := entity.Association(name)
		rest := base[len(name)+1:]
		path, terminal, attrs, ok := resolvePath(assoc.Target, rest, depth+1)
		if ok {
			return append([]string{name}, path...), terminal, attrs, true
		}
	}

	return nil, nil, nil, false
}

// splitAttributes resolves base as one column, or as an _or_ union where
// every member is a column of the entity.
func splitAttributes(entity *schema.EntityType, base string) ([]string, bool) {
	if entity.HasColumn(base) {
		return []string{base}, true
	}

	if !strings.Contains(base, "_or_") {
		return nil, false
	}
	parts := strings.Split(base, "_or_")
	for _, part := range parts {
		if !entity.HasColumn(part) {
			return nil, false
		}
	}
	return parts, true
}

// associationsByLength returns association names longest-first so the
// greedy prefix match prefers the most specific association.
func associationsByLength(entity *schema.EntityType) []string {
	names := entity.Associations()
	sort.Slice(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})
	return names
}
