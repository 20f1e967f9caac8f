// Package store holds the declarative schema and default rows of the
// e-commerce store.
package store

import (
	_ "embed"
	"fmt"

	"github.com/egoughnour/schemasync/internal/schema"
	"github.com/egoughnour/schemasync/internal/seed"
)

var (
	//go:embed schema.yaml
	schemaYAML []byte

	//go:embed defaults.yaml
	defaultsYAML []byte
)

// Schema returns a fresh copy of the built-in store schema.
func Schema() (*schema.Schema, error) {
	s, err := schema.Load(schemaYAML, "yaml")
	if err != nil {
		return nil, fmt.Errorf("loading store schema: %w", err)
	}
	return s, nil
}

// Defaults returns the rows the store needs on first start.
func Defaults() ([]seed.Entry, error) {
	entries, err := seed.Load(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("loading store defaults: %w", err)
	}
	return entries, nil
}
