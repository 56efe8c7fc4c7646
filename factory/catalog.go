/*
Package factory provides JSON to Go leave catalog conversion.

PURPOSE:
  Converts a JSON category catalog into a leave.Registry, so an agency can
  adjust allotments or add local categories without a code change. The
  default CSC catalog is always available from leave.DefaultRegistry.

JSON SCHEMA:
  {
    "extends_default": true,
    "categories": [
      {
        "name": "calamity",
        "display_name": "Special Emergency (Calamity) Leave",
        "requires_credit": false,
        "annual_allotment": 5
      },
      {
        "name": "wellness",
        "display_name": "Wellness Leave",
        "requires_credit": true,
        "annual_allotment": 2,
        "expires_after_year": true,
        "refund_on_cancel": true
      }
    ]
  }

  With extends_default, entries replace default categories of the same name
  and new names are appended. Without it the file is the whole catalog.

USAGE:
  registry, err := factory.LoadCatalog(cfg.CatalogPath)

SEE ALSO:
  - leave/category.go: CategoryPolicy and Registry
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the file format.
type CatalogJSON struct {
	ExtendsDefault bool           `json:"extends_default"`
	Categories     []CategoryJSON `json:"categories"`
}

// CategoryJSON is the JSON representation of a leave.CategoryPolicy.
type CategoryJSON struct {
	Name             string  `json:"name"`
	DisplayName      string  `json:"display_name"`
	RequiresCredit   bool    `json:"requires_credit"`
	AnnualAllotment  float64 `json:"annual_allotment,omitempty"`
	Cumulative       bool    `json:"cumulative,omitempty"`
	Commutable       bool    `json:"commutable,omitempty"`
	Gender           string  `json:"gender,omitempty"` // "", male, female
	SoloParentOnly   bool    `json:"solo_parent_only,omitempty"`
	ExpiresAfterYear bool    `json:"expires_after_year,omitempty"`
	ResetsAnnually   bool    `json:"resets_annually,omitempty"`
	RefundOnCancel   bool    `json:"refund_on_cancel,omitempty"`
}

// LoadCatalog reads a catalog file. An empty path yields the default catalog.
func LoadCatalog(path string) (*leave.Registry, error) {
	if path == "" {
		return leave.DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog builds a registry from catalog JSON.
func ParseCatalog(data []byte) (*leave.Registry, error) {
	var cj CatalogJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}
	if len(cj.Categories) == 0 && !cj.ExtendsDefault {
		return nil, fmt.Errorf("%w: catalog has no categories", leave.ErrInvalidCategory)
	}

	var policies []leave.CategoryPolicy
	index := map[leave.Category]int{}
	if cj.ExtendsDefault {
		for i, p := range leave.DefaultPolicies() {
			index[p.Category] = i
			policies = append(policies, p)
		}
	}
	for _, c := range cj.Categories {
		p, err := FromJSON(c)
		if err != nil {
			return nil, err
		}
		if i, ok := index[p.Category]; ok && cj.ExtendsDefault {
			policies[i] = p
			continue
		}
		index[p.Category] = len(policies)
		policies = append(policies, p)
	}
	return leave.NewRegistry(policies)
}

// FromJSON converts one category entry.
func FromJSON(c CategoryJSON) (leave.CategoryPolicy, error) {
	if c.Name == "" {
		return leave.CategoryPolicy{}, fmt.Errorf("%w: category without a name", leave.ErrInvalidCategory)
	}
	gender, err := parseGender(c.Gender)
	if err != nil {
		return leave.CategoryPolicy{}, fmt.Errorf("category %s: %w", c.Name, err)
	}
	if c.AnnualAllotment < 0 {
		return leave.CategoryPolicy{}, fmt.Errorf("%w: %s has negative allotment", leave.ErrInvalidCategory, c.Name)
	}
	display := c.DisplayName
	if display == "" {
		display = c.Name
	}
	return leave.CategoryPolicy{
		Category:         leave.Category(c.Name),
		DisplayName:      display,
		RequiresCredit:   c.RequiresCredit,
		AnnualAllotment:  generic.Days(c.AnnualAllotment),
		Cumulative:       c.Cumulative,
		Commutable:       c.Commutable,
		Gender:           gender,
		SoloParentOnly:   c.SoloParentOnly,
		ExpiresAfterYear: c.ExpiresAfterYear,
		ResetsAnnually:   c.ResetsAnnually,
		RefundOnCancel:   c.RefundOnCancel,
	}, nil
}

// ToJSON converts a policy back, used by the categories endpoint.
func ToJSON(p leave.CategoryPolicy) CategoryJSON {
	return CategoryJSON{
		Name:             string(p.Category),
		DisplayName:      p.DisplayName,
		RequiresCredit:   p.RequiresCredit,
		AnnualAllotment:  p.AnnualAllotment.Float(),
		Cumulative:       p.Cumulative,
		Commutable:       p.Commutable,
		Gender:           string(p.Gender),
		SoloParentOnly:   p.SoloParentOnly,
		ExpiresAfterYear: p.ExpiresAfterYear,
		ResetsAnnually:   p.ResetsAnnually,
		RefundOnCancel:   p.RefundOnCancel,
	}
}

func parseGender(s string) (leave.Gender, error) {
	switch leave.Gender(s) {
	case leave.GenderAny, leave.GenderMale, leave.GenderFemale:
		return leave.Gender(s), nil
	}
	return "", fmt.Errorf("%w: unknown gender restriction %q", leave.ErrInvalidCategory, s)
}
