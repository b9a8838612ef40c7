package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"offers-harvester/internal/config"
)

var spaceRun = regexp.MustCompile(`\s+`)

// Normalizer cleans the semi-structured strings the vendor API returns
// (descriptions and offer texts may carry markup, entities and NBSP).
type Normalizer struct {
	cfg config.NormalizeConfig
}

func NewNormalizer(cfg config.NormalizeConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Text returns s with markup removed, NBSP replaced and whitespace collapsed,
// as configured. It never fails: unparsable input comes back trimmed.
func (n *Normalizer) Text(s string) string {
	if s == "" {
		return ""
	}

	text := s
	if n.cfg.StripMarkup && looksLikeMarkup(text) {
		text = stripMarkup(text)
	}

	if n.cfg.TrimNBSP {
		text = strings.ReplaceAll(text, "\u00A0", " ")
	}

	if n.cfg.CollapseSpaces {
		text = spaceRun.ReplaceAllString(text, " ")
	}

	return strings.TrimSpace(text)
}

func looksLikeMarkup(s string) bool {
	return strings.ContainsAny(s, "<&")
}

// stripMarkup parses s as an HTML fragment and returns its text content,
// which also decodes entities such as &nbsp; and &euro;.
func stripMarkup(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}
