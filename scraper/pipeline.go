package scraper

import (
	"context"
	"fmt"

	"skzb-service/models"
)

// PageFetcher returns the decoded schedule page.
type PageFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Pipeline runs Fetcher -> Extractor -> LinkAssigner.
type Pipeline struct {
	fetcher   PageFetcher
	extractor *Extractor
	assigner  *LinkAssigner
}

// NewPipeline wires the three stages with a shared rule table.
func NewPipeline(fetcher PageFetcher, rules *Rules) *Pipeline {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Pipeline{
		fetcher:   fetcher,
		extractor: NewExtractor(rules),
		assigner:  NewLinkAssigner(rules),
	}
}

// FetchMatches fetches the page and returns fully populated records. An
// empty slice with a nil error means the page parsed but listed nothing.
func (p *Pipeline) FetchMatches(ctx context.Context) ([]models.MatchRecord, error) {
	markup, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return p.Parse(markup)
}

// Parse runs extraction and link assignment over already fetched markup.
func (p *Pipeline) Parse(markup string) ([]models.MatchRecord, error) {
	matches := p.extractor.Extract(markup)
	if len(matches) == 0 {
		return matches, nil
	}

	candidates, err := p.assigner.Collect(markup)
	if err != nil {
		return nil, fmt.Errorf("collect links: %w", err)
	}
	return p.assigner.Assign(matches, candidates), nil
}
