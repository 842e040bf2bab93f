package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the editorial reference data used when rendering and linking
// articles.
type Catalog struct {
	// LanguageFlags maps a language to its flag image URL. These URLs are
	// decoration and never count as article links.
	LanguageFlags map[string]string `yaml:"languageflags"`
	// CategoryTranslation maps an English category to its label per language.
	CategoryTranslation map[string]map[string]string `yaml:"categorytranslation"`
}

// LoadCatalog reads a YAML catalog. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{}
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Flags lists the flag URLs.
func (c *Catalog) Flags() []string {
	out := make([]string, 0, len(c.LanguageFlags))
	for _, v := range c.LanguageFlags {
		out = append(out, v)
	}
	return out
}
