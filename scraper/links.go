package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"skzb-service/models"
)

// MaxLinksPerMatch caps how many stream links one match can receive.
const MaxLinksPerMatch = 3

// Candidate is a stream-looking anchor scraped from the page.
type Candidate struct {
	URL string
}

// LinkAssigner distributes stream links across matches by position.
//
// The page only binds links to matches through client-side scripts, so the
// assignment is an approximation: match i gets a window of up to three links
// starting at i*linksPerMatch. Windows may overlap when there are fewer than
// three links per match.
type LinkAssigner struct {
	rules *Rules
}

// NewLinkAssigner creates an assigner. A nil rules table means DefaultRules.
func NewLinkAssigner(rules *Rules) *LinkAssigner {
	if rules == nil {
		rules = DefaultRules()
	}
	return &LinkAssigner{rules: rules}
}

// Collect returns stream candidates from markup in document order.
func (a *LinkAssigner) Collect(markup string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	var out []Candidate
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !a.rules.IsStreamURL(href) {
			return
		}
		out = append(out, Candidate{URL: href})
	})
	return out, nil
}

// Assign returns copies of matches with links populated.
func (a *LinkAssigner) Assign(matches []models.MatchRecord, candidates []Candidate) []models.MatchRecord {
	out := make([]models.MatchRecord, len(matches))
	perMatch := LinksPerMatch(len(candidates), len(matches))

	for i, m := range matches {
		start := i * perMatch
		end := start + MaxLinksPerMatch
		if end > len(candidates) {
			end = len(candidates)
		}

		links := []models.StreamLink{}
		if start < len(candidates) {
			for idx, c := range candidates[start:end] {
				links = append(links, models.StreamLink{
					Name: a.linkName(c.URL, idx),
					URL:  c.URL,
				})
			}
		}

		m.SetLinks(links)
		out[i] = m
	}
	return out
}

func (a *LinkAssigner) linkName(url string, idx int) string {
	if name := a.rules.PlatformName(url); name != "" {
		return name
	}
	return fmt.Sprintf(a.rules.FallbackLinkName, idx+1)
}

// LinksPerMatch is max(links / max(matches, 1), 1).
func LinksPerMatch(links, matches int) int {
	if matches < 1 {
		matches = 1
	}
	n := links / matches
	if n < 1 {
		n = 1
	}
	return n
}
