// Package addon installs an addon's tables and default rows into a store
// database.
package addon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/egoughnour/schemasync/internal/db"
	"github.com/egoughnour/schemasync/internal/schema"
	"github.com/egoughnour/schemasync/internal/seed"
	"github.com/egoughnour/schemasync/internal/syncer"
)

// ManifestFile is the manifest name looked up inside an addon directory.
const ManifestFile = "addon.yaml"

// Addon types accepted by the addon table.
var validTypes = map[string]bool{"MODULE": true, "STYLE": true, "SUPPLIER": true, "PAYMENT": true}

// ErrInvalidManifest is returned for manifests missing required fields.
var ErrInvalidManifest = errors.New("invalid addon manifest")

// Manifest describes an addon: its identity, the tables it adds and the
// default rows it needs.
type Manifest struct {
	Name        string         `json:"name" yaml:"name"`
	Type        string         `json:"type" yaml:"type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	DownloadURL string         `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Tables      []schema.Table `json:"tables,omitempty" yaml:"tables,omitempty"`
	Defaults    []seed.Entry   `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// LoadManifest reads a manifest file, or addon.yaml inside a directory.
func LoadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, ManifestFile)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(content, m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return m, m.Validate()
}

// Validate checks the required fields.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	m.Type = strings.ToUpper(strings.TrimSpace(m.Type))
	if !validTypes[m.Type] {
		return fmt.Errorf("%w: type %q is not one of MODULE, STYLE, SUPPLIER, PAYMENT", ErrInvalidManifest, m.Type)
	}
	return nil
}

// Result summarizes an installation.
type Result struct {
	AddonID  int64          `json:"addon_id" yaml:"addon_id"`
	Report   *syncer.Report `json:"report" yaml:"report"`
	Defaults int            `json:"defaults" yaml:"defaults"`
}

// Installer adds addons to a database whose base schema is known.
type Installer struct {
	pool   *db.Pool
	base   *schema.Schema
	opts   syncer.Options
	logger *slog.Logger
}

// NewInstaller creates an installer. base is the schema the addon extends.
func NewInstaller(pool *db.Pool, base *schema.Schema, opts syncer.Options) *Installer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{pool: pool, base: base, opts: opts, logger: logger}
}

// Install syncs the base schema plus the addon's tables, registers the addon
// and seeds its default rows tagged with the addon id. Installing an addon
// twice is a no-op beyond the second sync pass.
func (i *Installer) Install(ctx context.Context, m *Manifest) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	full, err := i.base.Merge(&schema.Schema{Tables: m.Tables})
	if err != nil {
		return nil, fmt.Errorf("addon %s: %w", m.Name, err)
	}

	report, err := syncer.New(i.pool, i.opts).Sync(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("syncing addon %s: %w", m.Name, err)
	}

	seeder := seed.ForPool(i.pool, full, i.logger)
	if _, err := seeder.InstallEntry(ctx, m.registration()); err != nil {
		return nil, fmt.Errorf("registering addon %s: %w", m.Name, err)
	}
	id, found, err := seeder.Lookup(ctx, seed.AddonTable, "name", m.Name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("addon %s was not registered", m.Name)
	}

	entries, err := i.tagged(ctx, m.Defaults, id)
	if err != nil {
		return nil, err
	}
	added, err := seeder.Install(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("seeding addon %s: %w", m.Name, err)
	}

	i.logger.Info("addon installed",
		"addon", m.Name,
		"type", m.Type,
		"addon_id", id,
		"tables", len(m.Tables),
		"defaults", added)
	return &Result{AddonID: id, Report: report, Defaults: added}, nil
}

func (m *Manifest) registration() seed.Entry {
	data := map[string]any{
		"type":      m.Type,
		"installed": true,
		"active":    false,
	}
	if m.Description != "" {
		data["description"] = m.Description
	}
	if m.Version != "" {
		data["version"] = m.Version
	}
	if m.DownloadURL != "" {
		data["download_url"] = m.DownloadURL
	}
	if m.Config != nil {
		data["config"] = m.Config
	}
	return seed.Entry{Table: seed.AddonTable, Key: "name", Value: m.Name, Data: data}
}

// tagged sets addon_id on every default row whose table has that column.
func (i *Installer) tagged(ctx context.Context, entries []seed.Entry, id int64) ([]seed.Entry, error) {
	out := make([]seed.Entry, 0, len(entries))
	for _, e := range entries {
		cols, err := i.pool.Columns(ctx, e.Table)
		if err != nil {
			return nil, err
		}
		data := make(map[string]any, len(e.Data)+1)
		for k, v := range e.Data {
			data[k] = v
		}
		if _, ok := cols["addon_id"]; ok {
			data["addon_id"] = id
		}
		e.Data = data
		out = append(out, e)
	}
	return out, nil
}
