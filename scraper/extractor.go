package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"skzb-service/logger"
	"skzb-service/models"
)

// ErrNoDateAnchor means the page did not carry the "YYYY-MM-DD 星期" header.
// Without it no record can be dated, so extraction yields nothing.
var ErrNoDateAnchor = errors.New("date anchor not found")

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)

	// 年月日之间可能夹着标签，例如 2025-<font>10</font>-17 星期五
	dateAnchorRe = regexp.MustCompile(`(\d{4})-\s*(?:<[^>]+>)?(\d{1,2})(?:</[^>]+>)?\s*-(\d{1,2})\s*星期`)

	occurrenceRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s+([^<\n]{1,100}?VS[^<\n]{1,50})`)
	entityRe     = regexp.MustCompile(`&[a-z]+;`)
	teamsRe      = regexp.MustCompile(`([^\s]{2,25})\s+VS\s+([^\s]{2,25})`)
)

// Extractor turns raw schedule markup into match records. Links are left
// empty; the LinkAssigner fills them in.
type Extractor struct {
	rules *Rules
	log   *logger.Logger
}

// NewExtractor creates an extractor. A nil rules table means DefaultRules.
func NewExtractor(rules *Rules) *Extractor {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Extractor{
		rules: rules,
		log:   logger.New("Extractor"),
	}
}

// Extract parses markup into records in page order. It never fails: a page
// without a date anchor or without match lines produces an empty slice.
func (e *Extractor) Extract(markup string) []models.MatchRecord {
	date, err := FindDate(markup)
	if err != nil {
		e.log.Printf("%v, no matches extracted", err)
		return []models.MatchRecord{}
	}

	cleaned := StripScripts(markup)
	found := occurrenceRe.FindAllStringSubmatch(cleaned, -1)
	matches := make([]models.MatchRecord, 0, len(found))

	for _, m := range found {
		hour, _ := strconv.Atoi(m[1])
		kickoff := fmt.Sprintf("%02d:%s", hour, m[2])
		matches = append(matches, e.buildRecord(date, kickoff, m[3], len(matches)))
	}

	if len(matches) == 0 {
		e.log.Printf("Date %s found but no match lines", date)
	}
	return matches
}

func (e *Extractor) buildRecord(date, kickoff, content string, ordinal int) models.MatchRecord {
	content = CleanText(content)
	league := e.rules.MatchLeague(content)

	teams := ""
	if vs := teamsRe.FindStringSubmatch(content); vs != nil {
		teams = vs[1] + " VS " + vs[2]
	}

	title := teams
	if league != "" {
		title = strings.TrimSpace(league + " " + teams)
	}

	record := models.MatchRecord{
		ID:       fmt.Sprintf("%s_%s_%d", date, kickoff, ordinal),
		Date:     date,
		Time:     kickoff,
		DateTime: date + " " + kickoff,
		League:   league,
		Teams:    teams,
		Title:    title,
	}
	record.SetLinks(nil)
	return record
}

// FindDate locates the page's current date and returns it as YYYY-MM-DD.
func FindDate(markup string) (string, error) {
	m := dateAnchorRe.FindStringSubmatch(markup)
	if m == nil {
		return "", ErrNoDateAnchor
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("%s-%02d-%02d", m[1], month, day), nil
}

// StripScripts removes <script> and <style> blocks, whose contents often
// contain "VS"-like noise.
func StripScripts(markup string) string {
	markup = scriptBlockRe.ReplaceAllString(markup, "")
	return styleBlockRe.ReplaceAllString(markup, "")
}

// CleanText drops HTML entities and collapses whitespace runs.
func CleanText(s string) string {
	s = entityRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
