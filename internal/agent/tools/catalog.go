package tools

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	logx "github.com/revpilot-ai/server/pkg/logger"
)

// Catalog is the YAML shape of a provider tool catalog file.
type Catalog struct {
	Provider string       `yaml:"provider"`
	Tools    []ToolConfig `yaml:"tools"`
}

// LoadCatalog parses a YAML catalog and registers every tool it declares.
// Entries inherit the catalog provider unless they set their own.
func (r *Registry) LoadCatalog(reader io.Reader) error {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	for _, cfg := range cat.Tools {
		if cfg.Provider == "" {
			cfg.Provider = cat.Provider
		}
		if err := r.Register(cfg); err != nil {
			return fmt.Errorf("register %q: %w", cfg.Name, err)
		}
	}

	logx.Debug().
		Str("provider", cat.Provider).
		Int("tool_count", len(cat.Tools)).
		Msg("Loaded tool catalog")
	return nil
}

// LoadCatalogFile loads a catalog from disk.
func (r *Registry) LoadCatalogFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()
	return r.LoadCatalog(f)
}
