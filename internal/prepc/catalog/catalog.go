// Package catalog provides the prompt templates a conversation can be started
// from, grouped by category.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

//go:embed builtin.toml
var builtinTOML string

// Template represents a conversation starter
type Template struct {
	ID             string `toml:"id"`
	Category       string `toml:"-"`
	Title          string `toml:"title"`
	Description    string `toml:"description"`
	Difficulty     string `toml:"difficulty,omitempty"`
	SystemPrompt   string `toml:"system_prompt"`
	InitialMessage string `toml:"initial_message,omitempty"` // Optional opening assistant line
}

// Category groups related templates
type Category struct {
	ID          string     `toml:"id"`
	Name        string     `toml:"name"`
	Description string     `toml:"description"`
	Templates   []Template `toml:"templates"`
}

type catalogFile struct {
	Categories []Category `toml:"categories"`
}

// Catalog is an ordered set of categories
type Catalog struct {
	categories []Category
}

// Builtin returns the catalog shipped with the binary
func Builtin() (*Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(builtinTOML, &f); err != nil {
		return nil, fmt.Errorf("error decoding builtin catalog: %v", err)
	}
	c := &Catalog{}
	c.merge(f.Categories)
	return c, nil
}

// Load returns the builtin catalog with every *.toml file found in dirs
// merged on top. Later directories take precedence over earlier ones.
func Load(dirs []string) (*Catalog, error) {
	c, err := Builtin()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			log.Debug().Str("dir", dir).Msg("Prompt directory does not exist")
			continue
		}
		files, err := filepath.Glob(filepath.Join(dir, "*.toml"))
		if err != nil {
			return nil, fmt.Errorf("error scanning prompt directory '%s': %v", dir, err)
		}
		sort.Strings(files)
		for _, file := range files {
			var f catalogFile
			if _, err := toml.DecodeFile(file, &f); err != nil {
				return nil, fmt.Errorf("error decoding catalog file '%s': %v", file, err)
			}
			log.Debug().Str("file", file).Int("categories", len(f.Categories)).Msg("Loaded catalog file")
			c.merge(f.Categories)
		}
	}

	return c, nil
}

// merge folds categories into c. Categories and templates are matched by ID.
func (c *Catalog) merge(categories []Category) {
	for _, incoming := range categories {
		if incoming.ID == "" {
			continue
		}
		idx := c.categoryIndex(incoming.ID)
		if idx < 0 {
			c.categories = append(c.categories, Category{ID: incoming.ID})
			idx = len(c.categories) - 1
		}
		existing := &c.categories[idx]
		if incoming.Name != "" {
			existing.Name = incoming.Name
		}
		if incoming.Description != "" {
			existing.Description = incoming.Description
		}

		for _, tpl := range incoming.Templates {
			if tpl.ID == "" {
				continue
			}
			tpl.Category = existing.ID
			tpl.SystemPrompt = strings.TrimSpace(tpl.SystemPrompt)
			replaced := false
			for i := range existing.Templates {
				if existing.Templates[i].ID == tpl.ID {
					existing.Templates[i] = tpl
					replaced = true
					break
				}
			}
			if !replaced {
				existing.Templates = append(existing.Templates, tpl)
			}
		}
	}
}

func (c *Catalog) categoryIndex(id string) int {
	for i := range c.categories {
		if c.categories[i].ID == id {
			return i
		}
	}
	return -1
}

// Categories returns all categories in catalog order
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Lookup returns the template identified by a (category, template) selection
func (c *Catalog) Lookup(categoryID, templateID string) (Template, bool) {
	idx := c.categoryIndex(categoryID)
	if idx < 0 {
		return Template{}, false
	}
	for _, tpl := range c.categories[idx].Templates {
		if tpl.ID == templateID {
			return tpl, true
		}
	}
	return Template{}, false
}

// Find returns the template with the given ID from any category
func (c *Catalog) Find(templateID string) (Template, bool) {
	for _, category := range c.categories {
		for _, tpl := range category.Templates {
			if tpl.ID == templateID {
				return tpl, true
			}
		}
	}
	return Template{}, false
}
