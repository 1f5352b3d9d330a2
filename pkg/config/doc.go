// Package config loads the two configuration surfaces: process settings
// from METASEARCH_* environment variables, and the searchable object model
// (entity types plus per-entity search declarations) from a YAML file.
package config
