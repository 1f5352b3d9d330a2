package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/registry"
	"github.com/paneq/meta-search/pkg/schema"
)

// SchemaFile is the YAML description of the searchable object model: the
// entity types with their columns and associations, plus the per-entity
// searchable declarations.
type SchemaFile struct {
	Entities []EntityDecl          `yaml:"entities"`
	Search   map[string]SearchDecl `yaml:"search"`
}

// EntityDecl declares one entity type.
type EntityDecl struct {
	Name         string            `yaml:"name"`
	Table        string            `yaml:"table"`
	PrimaryKey   string            `yaml:"primary_key"`
	Columns      []ColumnDecl      `yaml:"columns"`
	Associations []AssociationDecl `yaml:"associations"`
}

// ColumnDecl declares one persisted column.
type ColumnDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// AssociationDecl declares a relationship to another declared entity.
type AssociationDecl struct {
	Name         string `yaml:"name"`
	Target       string `yaml:"target"`
	OwnerColumn  string `yaml:"owner_column"`
	TargetColumn string `yaml:"target_column"`
}

// SearchDecl holds the searchable configuration for one entity.
type SearchDecl struct {
	SearchableAttributes     []RuleDecl   `yaml:"searchable_attributes"`
	UnsearchableAttributes   []RuleDecl   `yaml:"unsearchable_attributes"`
	SearchableAssociations   []RuleDecl   `yaml:"searchable_associations"`
	UnsearchableAssociations []RuleDecl   `yaml:"unsearchable_associations"`
	Methods                  []MethodDecl `yaml:"methods"`
}

// RuleDecl is one declaration entry: either a bare column/association name
// or a mapping with an if_role gate, which attaches a predicate passing
// only when the search context's "role" equals the given value.
type RuleDecl struct {
	Name   string `yaml:"name"`
	IfRole string `yaml:"if_role"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (r *RuleDecl) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err == nil {
		r.Name = name
		return nil
	}

	type plain RuleDecl
	return value.Decode((*plain)(r))
}

// MethodDecl declares a custom search method as a raw SQL fragment with a
// single bound value, optionally gated by role.
type MethodDecl struct {
	Name   string `yaml:"name"`
	SQL    string `yaml:"sql"`
	IfRole string `yaml:"if_role"`
}

// Model is the loaded object model: the entity set and the configured
// registries ready to bind into a dispatch.
type Model struct {
	Set        *schema.Set
	Registries []*registry.Registry
}

// LoadSchemaFile reads and resolves a YAML schema file.
func LoadSchemaFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return LoadSchema(data)
}

// LoadSchema resolves a YAML schema document. Entities are built in two
// passes so associations can reference entities declared later in the
// file. Declarations naming unknown columns or associations surface the
// registry's *ConfigurationError.
func LoadSchema(data []byte) (*Model, error) {
	var file SchemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	set := schema.NewSet()

	// First pass: entities and columns.
	for _, decl := range file.Entities {
		if decl.Name == "" || decl.Table == "" {
			return nil, fmt.Errorf("entity declaration requires name and table")
		}
		entity := schema.NewEntityType(decl.Name, decl.Table)
		if decl.PrimaryKey != "" {
			entity.SetPrimaryKey(decl.PrimaryKey)
		}
		for _, col := range decl.Columns {
			typ, err := columnType(col.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %s column %s: %w", decl.Name, col.Name, err)
			}
			entity.AddColumn(col.Name, typ)
		}
		if err := set.Register(entity); err != nil {
			return nil, err
		}
	}

	// Second pass: associations, now that every target exists.
	for _, decl := range file.Entities {
		entity, _ := set.Lookup(decl.Name)
		for _, assoc := range decl.Associations {
			target, ok := set.Lookup(assoc.Target)
			if !ok {
				return nil, fmt.Errorf("entity %s association %s: unknown target entity %q",
					decl.Name, assoc.Name, assoc.Target)
			}
			entity.AddAssociation(assoc.Name, target, assoc.OwnerColumn, assoc.TargetColumn)
		}
	}

	model := &Model{Set: set}
	for entityName, decl := range file.Search {
		entity, ok := set.Lookup(entityName)
		if !ok {
			return nil, fmt.Errorf("search declaration for unknown entity %q", entityName)
		}
		reg, err := buildRegistry(entity, decl)
		if err != nil {
			return nil, err
		}
		model.Registries = append(model.Registries, reg)
	}
	return model, nil
}

func buildRegistry(entity *schema.EntityType, decl SearchDecl) (*registry.Registry, error) {
	reg := registry.New(entity)

	declares := []struct {
		rules   []RuleDecl
		declare func([]string, ...registry.DeclareOption) error
	}{
		{decl.SearchableAttributes, reg.DeclareSearchableAttributes},
		{decl.UnsearchableAttributes, reg.DeclareUnsearchableAttributes},
		{decl.SearchableAssociations, reg.DeclareSearchableAssociations},
		{decl.UnsearchableAssociations, reg.DeclareUnsearchableAssociations},
	}
	for _, d := range declares {
		for _, rule := range d.rules {
			opts := []registry.DeclareOption{}
			if rule.IfRole != "" {
				opts = append(opts, registry.If(rolePredicate(rule.IfRole)))
			}
			if err := d.declare([]string{rule.Name}, opts...); err != nil {
				return nil, fmt.Errorf("entity %s: %w", entity.Name, err)
			}
		}
	}

	for _, m := range decl.Methods {
		method := registry.SearchMethod{
			Name:  m.Name,
			Apply: rawMethod(m.SQL),
		}
		if m.IfRole != "" {
			method.If = rolePredicate(m.IfRole)
		}
		if err := reg.DeclareSearchMethod(method); err != nil {
			return nil, fmt.Errorf("entity %s: %w", entity.Name, err)
		}
	}

	return reg, nil
}

func rolePredicate(role string) registry.Predicate {
	return func(ctx registry.SearchContext) bool {
		return ctx["role"] == role
	}
}

func rawMethod(sql string) registry.MethodFunc {
	return func(value any) (predicates.Clause, error) {
		return predicates.Clause{Raw: sql, Args: []any{value}}, nil
	}
}

func columnType(name string) (schema.ColumnType, error) {
	switch schema.ColumnType(name) {
	case schema.TypeString, schema.TypeInteger, schema.TypeFloat, schema.TypeBoolean, schema.TypeTime:
		return schema.ColumnType(name), nil
	}
	return "", fmt.Errorf("unknown column type %q", name)
}
