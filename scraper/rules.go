package scraper

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// RuleFile is the on-disk shape of the rule tables.
type RuleFile struct {
	Leagues          []LeagueRuleSpec   `yaml:"leagues"`
	StreamKeywords   []string           `yaml:"stream_keywords"`
	ExcludedMarkers  []string           `yaml:"excluded_markers"`
	Platforms        []PlatformRuleSpec `yaml:"platforms"`
	FallbackLinkName string             `yaml:"fallback_link_name"`
}

type LeagueRuleSpec struct {
	Pattern string `yaml:"pattern"`
	Label   string `yaml:"label"`
}

type PlatformRuleSpec struct {
	Name   string   `yaml:"name"`
	Tokens []string `yaml:"tokens"`
}

// LeagueRule is a compiled league pattern. An empty Label means the matched
// text itself is the league.
type LeagueRule struct {
	Pattern *regexp.Regexp
	Label   string
}

// PlatformRule maps URL tokens to a human readable platform name.
type PlatformRule struct {
	Name   string
	Tokens []string
}

// Rules holds the ordered, first-match-wins tables used by the extractor and
// the link assigner.
type Rules struct {
	Leagues          []LeagueRule
	StreamKeywords   []string
	ExcludedMarkers  []string
	Platforms        []PlatformRule
	FallbackLinkName string
}

// DefaultRules returns the rule tables embedded in the binary.
func DefaultRules() *Rules {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("scraper: embedded rules are invalid: %v", err))
	}
	return rules
}

// LoadRules reads a YAML rule file from disk.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules compiles a YAML rule document.
func ParseRules(data []byte) (*Rules, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Compile()
}

// Compile validates the rule file and compiles league patterns.
func (f RuleFile) Compile() (*Rules, error) {
	rules := &Rules{
		StreamKeywords:   lowerAll(f.StreamKeywords),
		ExcludedMarkers:  lowerAll(f.ExcludedMarkers),
		FallbackLinkName: f.FallbackLinkName,
	}
	if rules.FallbackLinkName == "" {
		rules.FallbackLinkName = "直播信号%d"
	}

	for i, l := range f.Leagues {
		if l.Pattern == "" {
			return nil, fmt.Errorf("league rule %d: empty pattern", i)
		}
		re, err := regexp.Compile(l.Pattern)
		if err != nil {
			return nil, fmt.Errorf("league rule %d: %w", i, err)
		}
		rules.Leagues = append(rules.Leagues, LeagueRule{Pattern: re, Label: l.Label})
	}

	for i, p := range f.Platforms {
		if p.Name == "" || len(p.Tokens) == 0 {
			return nil, fmt.Errorf("platform rule %d: name and tokens are required", i)
		}
		rules.Platforms = append(rules.Platforms, PlatformRule{Name: p.Name, Tokens: lowerAll(p.Tokens)})
	}

	return rules, nil
}

// MatchLeague returns the label of the first league rule matching text.
func (r *Rules) MatchLeague(text string) string {
	for _, rule := range r.Leagues {
		m := rule.Pattern.FindString(text)
		if m == "" {
			continue
		}
		if rule.Label != "" {
			return rule.Label
		}
		return m
	}
	return ""
}

// PlatformName returns the platform for a URL, or "" if none matches.
func (r *Rules) PlatformName(url string) string {
	lower := strings.ToLower(url)
	for _, p := range r.Platforms {
		if containsAny(lower, p.Tokens) {
			return p.Name
		}
	}
	return ""
}

// IsStreamURL reports whether href looks like a live-stream target.
func (r *Rules) IsStreamURL(href string) bool {
	lower := strings.ToLower(href)
	if !containsAny(lower, r.StreamKeywords) && r.PlatformName(lower) == "" {
		return false
	}
	return !containsAny(lower, r.ExcludedMarkers)
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
