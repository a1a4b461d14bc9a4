// services/extract_service.go
package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/brandsight/brandsight-workflows/internal/models"
)

// EntityTable is the immutable lookup data an extract service is built
// from: the tracked brand, the canonical competitor/brand list, and the
// alias forms that resolve to a canonical name. Injected at construction so
// tests can override it without cross-test pollution.
type EntityTable struct {
	Brand     string
	Canonical []string
	Aliases   map[string]string
}

// DefaultEntityTable is the networking-vendor table the dashboard tracks.
func DefaultEntityTable() EntityTable {
	return EntityTable{
		Brand: "Extreme Networks",
		Canonical: []string{
			"Cisco", "Juniper", "Huawei", "Arista", "HPE", "Aruba",
			"Dell", "Fortinet", "Ubiquiti", "Nokia", "Extreme Networks",
		},
		Aliases: map[string]string{
			"Cisco Systems":               "Cisco",
			"Meraki":                      "Cisco",
			"Juniper Networks":            "Juniper",
			"Mist":                        "Juniper",
			"Arista Networks":             "Arista",
			"Hewlett Packard Enterprise":  "HPE",
			"Aruba Networks":              "Aruba",
			"Dell Technologies":           "Dell",
			"FortiGate":                   "Fortinet",
			"Ubiquiti Networks":           "Ubiquiti",
		},
	}
}

// EntityTableForBrand returns the default table with the configured brand
// swapped in, so BRAND_NAME changes both the tracked brand and the matcher
// that detects it.
func EntityTableForBrand(brand string) EntityTable {
	table := DefaultEntityTable()
	if brand == "" || brand == table.Brand {
		return table
	}
	for i, name := range table.Canonical {
		if name == table.Brand {
			table.Canonical[i] = brand
		}
	}
	table.Brand = brand
	return table
}

type matcher struct {
	canonical string
	re        *regexp.Regexp
}

type extractService struct {
	table    EntityTable
	matchers []matcher
	brandKey string
}

// NewExtractService compiles the table into word-boundary matchers once, at
// construction. The service is stateless afterwards.
func NewExtractService(table EntityTable) ExtractService {
	s := &extractService{
		table:    table,
		brandKey: strings.ToLower(table.Brand),
	}

	for _, name := range table.Canonical {
		s.matchers = append(s.matchers, matcher{
			canonical: name,
			re:        wordBoundaryPattern(name),
		})
	}
	for alias, canonical := range table.Aliases {
		s.matchers = append(s.matchers, matcher{
			canonical: canonical,
			re:        wordBoundaryPattern(alias),
		})
	}

	return s
}

// wordBoundaryPattern anchors the name on word boundaries so "HPE" never
// matches inside another word.
func wordBoundaryPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
}

func (s *extractService) BrandName() string {
	return s.table.Brand
}

func (s *extractService) ExtractEntities(text string) []models.EntityMention {
	if text == "" {
		return []models.EntityMention{}
	}

	// Earliest offset wins when both an alias and the canonical form appear.
	earliest := make(map[string]int)
	for _, m := range s.matchers {
		loc := m.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if pos, seen := earliest[m.canonical]; !seen || loc[0] < pos {
			earliest[m.canonical] = loc[0]
		}
	}

	mentions := make([]models.EntityMention, 0, len(earliest))
	for name, pos := range earliest {
		mentions = append(mentions, models.EntityMention{Name: name, FirstPos: pos})
	}
	sort.Slice(mentions, func(i, j int) bool {
		if mentions[i].FirstPos != mentions[j].FirstPos {
			return mentions[i].FirstPos < mentions[j].FirstPos
		}
		return mentions[i].Name < mentions[j].Name
	})
	return mentions
}

func (s *extractService) NormalizeEntities(mentions []models.EntityMention) []models.NormalizedEntity {
	out := make([]models.NormalizedEntity, 0, len(mentions))
	seen := make(map[string]bool)
	for _, m := range mentions {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		isBrand := key == s.brandKey
		out = append(out, models.NormalizedEntity{
			Name:         name,
			Type:         "company",
			IsBrand:      isBrand,
			IsCompetitor: !isBrand,
		})
	}
	return out
}

func (s *extractService) BrandPosition(mentions []models.EntityMention) (bool, *int) {
	for idx, m := range mentions {
		if strings.EqualFold(m.Name, s.table.Brand) {
			rank := idx + 1
			return true, &rank
		}
	}
	return false, nil
}
