package schema

import (
	"fmt"
	"sort"
	"sync"
)

// ColumnType identifies the persisted type of a column. Search parameter
// values are coerced to this type before a predicate clause is built.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeBoolean ColumnType = "boolean"
	TypeTime    ColumnType = "time"
)

// Column describes a single persisted column on an entity type.
type Column struct {
	Name string
	Type ColumnType
}

// Association describes a named relationship to another entity type.
// The join condition is owner.OwnerColumn = target.TargetColumn, which
// covers both belongs-to (OwnerColumn is the foreign key) and has-many
// (TargetColumn is the foreign key) shapes.
type Association struct {
	Name         string
	Target       *EntityType
	OwnerColumn  string
	TargetColumn string
}

// EntityType is a static descriptor for one searchable table. Instances are
// built once at configuration time and treated as immutable afterwards.
type EntityType struct {
	Name  string
	Table string

	pk           string
	columns      map[string]Column
	associations map[string]*Association
}

// NewEntityType creates an entity descriptor for the given table.
func NewEntityType(name, table string) *EntityType {
	return &EntityType{
		Name:         name,
		Table:        table,
		columns:      make(map[string]Column),
		associations: make(map[string]*Association),
	}
}

// AddColumn registers a persisted column. Returns the entity for chaining.
func (e *EntityType) AddColumn(name string, typ ColumnType) *EntityType {
	e.columns[name] = Column{Name: name, Type: typ}
	return e
}

// AddAssociation registers a relationship to another entity type.
// ownerColumn and targetColumn form the join condition.
func (e *EntityType) AddAssociation(name string, target *EntityType, ownerColumn, targetColumn string) *EntityType {
	e.associations[name] = &Association{
		Name:         name,
		Target:       target,
		OwnerColumn:  ownerColumn,
		TargetColumn: targetColumn,
	}
	return e
}

// SetPrimaryKey overrides the primary key column, which defaults to "id".
// Returns the entity for chaining.
func (e *EntityType) SetPrimaryKey(name string) *EntityType {
	e.pk = name
	return e
}

// PrimaryKey returns the primary key column name.
func (e *EntityType) PrimaryKey() string {
	if e.pk == "" {
		return "id"
	}
	return e.pk
}

// HasColumn reports whether name is a persisted column.
func (e *EntityType) HasColumn(name string) bool {
	_, ok := e.columns[name]
	return ok
}

// Column returns the column descriptor for name.
func (e *EntityType) Column(name string) (Column, bool) {
	c, ok := e.columns[name]
	return c, ok
}

// HasAssociation reports whether name is a declared association.
func (e *EntityType) HasAssociation(name string) bool {
	_, ok := e.associations[name]
	return ok
}

// Association returns the association descriptor for name.
func (e *EntityType) Association(name string) (*Association, bool) {
	a, ok := e.associations[name]
	return a, ok
}

// Columns returns the sorted names of all persisted columns.
func (e *EntityType) Columns() []string {
	names := make([]string, 0, len(e.columns))
	for name := range e.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Associations returns the sorted names of all declared associations.
func (e *EntityType) Associations() []string {
	names := make([]string, 0, len(e.associations))
	for name := range e.associations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set is a named collection of entity types, used by the config loader and
// the HTTP layer to resolve entities by name. Registration is idempotent
// for the same descriptor and rejects conflicting re-registration.
type Set struct {
	mu     sync.RWMutex
	byName map[string]*EntityType
}

// NewSet creates an empty entity set.
func NewSet() *Set {
	return &Set{byName: make(map[string]*EntityType)}
}

// Register adds an entity type to the set.
func (s *Set) Register(entity *EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byName[entity.Name]; ok && existing != entity {
		return fmt.Errorf("entity type %q already registered", entity.Name)
	}
	s.byName[entity.Name] = entity
	return nil
}

// Lookup returns the entity type registered under name.
func (s *Set) Lookup(name string) (*EntityType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byName[name]
	return e, ok
}

// Names returns the sorted names of all registered entity types.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
