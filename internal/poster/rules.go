// Package poster implements the per-platform publishing adapters. Each
// platform's constraints live in an embedded rules file so limits can
// be reviewed and adjusted without touching adapter code.
package poster

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// PlatformRule holds the hard constraints for one platform.
type PlatformRule struct {
	DisplayName       string   `yaml:"display_name"`
	Aliases           []string `yaml:"aliases"`
	MaxLength         int      `yaml:"max_length"`
	MaxMedia          int      `yaml:"max_media"`
	MediaRequired     bool     `yaml:"media_required"`
	RequiresSubreddit bool     `yaml:"requires_subreddit"`
	RequiresBoard     bool     `yaml:"requires_board"`
}

// SoftRules are advisory thresholds. Violations produce warnings and
// never block a post.
type SoftRules struct {
	MinLength     int     `yaml:"min_length"`
	MaxPromoRatio float64 `yaml:"max_promo_ratio"`
	MaxCapsRatio  float64 `yaml:"max_caps_ratio"`
}

// RuleSet is the decoded rules file with alias resolution.
type RuleSet struct {
	Platforms map[string]PlatformRule `yaml:"platforms"`
	Soft      SoftRules               `yaml:"soft"`

	aliases map[string]string
}

// LoadRules decodes the embedded rules file.
func LoadRules() (*RuleSet, error) {
	return parseRules(rulesYAML)
}

func parseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse platform rules: %w", err)
	}
	if len(rs.Platforms) == 0 {
		return nil, fmt.Errorf("platform rules: no platforms defined")
	}
	rs.aliases = make(map[string]string)
	for name, rule := range rs.Platforms {
		if rule.MaxLength <= 0 {
			return nil, fmt.Errorf("platform rules: %s has no max_length", name)
		}
		for _, alias := range rule.Aliases {
			rs.aliases[strings.ToLower(alias)] = name
		}
	}
	return &rs, nil
}

// Resolve maps a platform name or alias to its canonical name,
// case-insensitively.
func (rs *RuleSet) Resolve(platform string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(platform))
	if _, ok := rs.Platforms[key]; ok {
		return key, true
	}
	if canonical, ok := rs.aliases[key]; ok {
		return canonical, true
	}
	return "", false
}

// Rule returns the rule for a platform name or alias.
func (rs *RuleSet) Rule(platform string) (PlatformRule, bool) {
	canonical, ok := rs.Resolve(platform)
	if !ok {
		return PlatformRule{}, false
	}
	return rs.Platforms[canonical], true
}

// Names lists the canonical platform names in stable order.
func (rs *RuleSet) Names() []string {
	names := make([]string, 0, len(rs.Platforms))
	for name := range rs.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
