package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/egoughnour/schemasync/internal/db"
	"github.com/egoughnour/schemasync/internal/schema"
	"github.com/egoughnour/schemasync/internal/schema/store"
	"github.com/egoughnour/schemasync/internal/syncer"
)

// loadSchema returns the configured schema file, or the built-in store
// schema when none is set. builtin reports which one was used.
func loadSchema() (s *schema.Schema, builtin bool, err error) {
	if cfg.SchemaPath == "" {
		s, err = store.Schema()
		return s, true, err
	}
	s, err = schema.LoadFile(cfg.SchemaPath)
	if err != nil {
		return nil, false, fmt.Errorf("loading schema %s: %w", cfg.SchemaPath, err)
	}
	return s, false, nil
}

func openPool(ctx context.Context) (*db.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return db.Open(ctx, cfg.DatabaseURI, db.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		Attempts:       cfg.ConnectRetries,
		RetryDelay:     cfg.RetryDelay,
		Logger:         logger,
	})
}

func syncOptions() syncer.Options {
	return syncer.Options{AllowColumnDrop: cfg.AllowColumnDrop, Logger: logger}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(true)
	return table
}

// writeStructured encodes v as json or yaml. It reports false for text.
func writeStructured(w io.Writer, v any) (bool, error) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return true, enc.Encode(v)
	case "text", "":
		return false, nil
	}
	return false, fmt.Errorf("unsupported output format: %s", outputFormat)
}

func outcomeColor(o syncer.Outcome) *color.Color {
	switch o {
	case syncer.Created:
		return color.New(color.FgGreen)
	case syncer.Altered:
		return color.New(color.FgYellow)
	case syncer.Recreated:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.Faint)
	}
}
