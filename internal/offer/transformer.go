package offer

import (
	"fmt"
	"html"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"offers-harvester/internal/normalize"
)

var imageFolderPattern = regexp.MustCompile(`products/(\d*)`)

// Policy decides which records become offers. Only one offer type is active
// per run; Threshold is a percentage and the boundary is inclusive.
type Policy struct {
	OfferType string
	Threshold float64
	Currency  string
}

// Links holds the URL pieces used to build product and image markup.
type Links struct {
	ProductURLBase   string
	MediaBaseURL     string
	PlaceholderImage string
}

// Analysis is the pricing view of one raw record.
type Analysis struct {
	NormalPrice float64
	Discount    float64
	Percentage  float64 // rounded to 2 decimals
	ActualPrice float64
	Savings     float64
}

type Transformer struct {
	policy     Policy
	links      Links
	normalizer *normalize.Normalizer
	discountRe *regexp.Regexp
}

func NewTransformer(policy Policy, links Links, normalizer *normalize.Normalizer) *Transformer {
	if policy.Currency == "" {
		policy.Currency = "€"
	}
	return &Transformer{
		policy:     policy,
		links:      links,
		normalizer: normalizer,
		discountRe: regexp.MustCompile(regexp.QuoteMeta(policy.Currency) + `\s?(\d+(?:\.\d{1,2})?)`),
	}
}

func (t *Transformer) Policy() Policy {
	return t.policy
}

// Transform returns the derived offer and true when raw passes the policy.
// Malformed records never fail: missing pieces fall back to zero discount,
// zero price or the placeholder image.
func (t *Transformer) Transform(raw RawProduct) (Derived, bool) {
	if raw.OfferType != t.policy.OfferType {
		return Derived{}, false
	}

	a := t.Analyze(raw)
	if a.Percentage < t.policy.Threshold {
		return Derived{}, false
	}

	details := raw.Details()
	partNumber := strings.TrimSpace(details.PartNumber.String())
	link := t.links.ProductURLBase + url.QueryEscape(partNumber)
	imageURL := t.imageURL(raw.Image.String(), partNumber)
	title := t.clean(details.Description.String())

	return Derived{
		Category: details.Category.String(),
		Product: fmt.Sprintf("<a href='%s' target='_blank'>%s</a>",
			html.EscapeString(link), html.EscapeString(title)),
		Image: fmt.Sprintf("<a href='%s' target='_blank'><img class='product-image-img' src='%s' loading='lazy'/></a>",
			html.EscapeString(link), html.EscapeString(imageURL)),
		NormalPrice: t.policy.Currency + strconv.FormatFloat(a.NormalPrice, 'f', -1, 64),
		Discount:    fmt.Sprintf("%d%% off", int(roundHalfUp(a.Percentage))),
		ActualPrice: t.policy.Currency + strconv.FormatFloat(a.ActualPrice, 'f', 2, 64),
		Savings:     t.policy.Currency + strconv.FormatFloat(a.Savings, 'f', 2, 64),
	}, true
}

// Analyze computes discount, percentage and derived prices for raw without
// applying the policy.
func (t *Transformer) Analyze(raw RawProduct) Analysis {
	normal := float64(raw.Details().NormalPrice)
	discount := t.DiscountAmount(raw.OfferText.String())

	a := Analysis{NormalPrice: normal, Discount: discount}
	if normal > 0 {
		a.Percentage = round2(100 - ((normal-discount)/normal)*100)
	}
	a.ActualPrice = round2(normal - discount)
	a.Savings = round2(normal - a.ActualPrice)
	return a
}

// DiscountAmount returns the first currency amount in offerText, or 0.
func (t *Transformer) DiscountAmount(offerText string) float64 {
	m := t.discountRe.FindStringSubmatch(t.clean(offerText))
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// ImageFolder extracts the numeric folder from an image path such as
// "products/7/x1.jpg". It returns "" when there is none.
func ImageFolder(image string) string {
	m := imageFolderPattern.FindStringSubmatch(image)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (t *Transformer) imageURL(image, partNumber string) string {
	folder := ImageFolder(image)
	if folder == "" || partNumber == "" {
		return t.links.PlaceholderImage
	}
	return fmt.Sprintf("%s/%s/%s.jpg", strings.TrimRight(t.links.MediaBaseURL, "/"), folder, url.PathEscape(partNumber))
}

func (t *Transformer) clean(s string) string {
	if t.normalizer == nil {
		return strings.TrimSpace(s)
	}
	return t.normalizer.Text(s)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
