// Package refdata holds the static lookup tables the legacy schema encoded
// as bare numeric ids: countries, locations and venue categories. The tables
// ship embedded so a plain run needs no extra files, and can be replaced via
// REFDATA_FILE so new legacy codes do not require a rebuild.
package refdata

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var embeddedReference []byte

// Country describes one canonical country definition keyed by a legacy code.
type Country struct {
	Name      string `yaml:"name"`
	Code      string `yaml:"code"`  // ISO alpha-3
	Code2     string `yaml:"code2"` // ISO alpha-2
	Currency  string `yaml:"currency"`
	PhoneCode string `yaml:"phone_code"`
}

// Defaults carries regional fallbacks used when synthesizing contact data.
type Defaults struct {
	PhonePrefix string `yaml:"phone_prefix"`
	Currency    string `yaml:"currency"`
}

// Tables is the full reference data set.
type Tables struct {
	Countries  map[int64]Country `yaml:"countries"`
	Locations  map[int64]string  `yaml:"locations"`
	Categories map[int64]string  `yaml:"categories"`
	Defaults   Defaults          `yaml:"defaults"`
}

// Load returns the reference tables, reading path when non-empty and the
// embedded defaults otherwise.
func Load(path string) (*Tables, error) {
	raw := embeddedReference
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read reference data %s: %w", path, err)
		}
		raw = b
	}

	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}

	if len(t.Countries) == 0 {
		return nil, fmt.Errorf("reference data has no countries")
	}
	if t.Defaults.PhonePrefix == "" {
		t.Defaults.PhonePrefix = "250999"
	}
	// The first three digits double as the country dialing code when
	// synthesizing owner contact data.
	if len(t.Defaults.PhonePrefix) < 3 {
		return nil, fmt.Errorf("reference data phone_prefix %q must be at least 3 digits", t.Defaults.PhonePrefix)
	}
	if t.Defaults.Currency == "" {
		t.Defaults.Currency = "RWF"
	}

	return &t, nil
}

// CountryByLegacyCode looks up the canonical definition for a legacy country
// code. The second return is false for codes the table does not know.
func (t *Tables) CountryByLegacyCode(code int64) (Country, bool) {
	c, ok := t.Countries[code]
	return c, ok
}

// LocationName returns the city name for a legacy location code.
func (t *Tables) LocationName(code int64) (string, bool) {
	name, ok := t.Locations[code]
	return name, ok
}

// BusinessType maps a legacy category id to a V2 business type, empty when
// the category is unmapped.
func (t *Tables) BusinessType(categoryID int64) string {
	return t.Categories[categoryID]
}
