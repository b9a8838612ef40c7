package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"offers-harvester/internal/config"
	"offers-harvester/internal/observability"
	"offers-harvester/internal/offer"
	"offers-harvester/internal/token"
)

// PageRequest selects one page of the listing endpoint.
type PageRequest struct {
	Category        string
	ProductListType string
	Page            int
	PageSize        int
}

// PageResult is one decoded listing page.
type PageResult struct {
	Records []offer.RawProduct
	// HasMore is the server's continuation flag; absent means false.
	HasMore bool
	// Malformed counts ProductList entries that could not be decoded at all.
	Malformed int
}

type Fetcher struct {
	client      *resty.Client
	cfg         *config.Config
	logger      *observability.Logger
	metrics     *observability.Metrics
	rateLimiter *RateLimiter
	host        string
}

func NewFetcher(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *Fetcher {
	client := resty.New().
		SetBaseURL(cfg.Site.APIBaseURL).
		SetTimeout(cfg.GetTotalTimeout()).
		SetHeader("User-Agent", cfg.HTTP.UserAgent).
		SetHeader("Accept", "application/json")

	host := cfg.Site.APIBaseURL
	if u, err := url.Parse(cfg.Site.APIBaseURL); err == nil {
		host = u.Host
	}

	return &Fetcher{
		client:      client,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RPM),
		host:        host,
	}
}

// FetchPage issues one authenticated GET for req. It does not retry.
func (f *Fetcher) FetchPage(ctx context.Context, cred token.Credential, req PageRequest) (*PageResult, error) {
	if err := f.rateLimiter.Wait(ctx, f.host); err != nil {
		return nil, &FetchError{Page: req.Page, Cause: fmt.Errorf("rate limit: %w", err)}
	}

	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetAuthToken(cred.String()).
		SetQueryParamsFromValues(f.Query(req)).
		Get(f.cfg.Site.ListingEndpoint)
	f.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		return nil, &FetchError{Page: req.Page, Cause: err}
	}

	f.logger.Debug("Listing page response",
		"page", req.Page,
		"status", resp.StatusCode(),
		"bytes", len(resp.Body()),
		"elapsed", resp.Time().String(),
	)

	if !resp.IsSuccess() {
		return nil, &FetchError{Page: req.Page, Status: resp.StatusCode()}
	}

	result, err := DecodePage(resp.Body())
	if err != nil {
		return nil, &FetchError{Page: req.Page, Status: resp.StatusCode(), Cause: fmt.Errorf("decode payload: %w", err)}
	}
	if result.Malformed > 0 {
		f.logger.Warn("Skipped undecodable listing entries",
			"page", req.Page,
			"count", result.Malformed,
		)
	}
	return result, nil
}

// Query builds the listing query string. Empty parameters are sent
// explicitly because the endpoint expects the full parameter set.
func (f *Fetcher) Query(req PageRequest) url.Values {
	site := f.cfg.Site
	q := url.Values{}
	q.Set("Agent", site.Agent)
	q.Set("Loc", site.Location)
	q.Set("Eid", site.Eid)
	q.Set("SearchCriteria", "")
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("NumberOfRecords", strconv.Itoa(req.PageSize))
	q.Set("SortType", "Price")
	q.Set("SortDirection", "Asc")
	q.Set("Category", req.Category)
	q.Set("Category2", "")
	q.Set("Category3", "")
	q.Set("Type", "")
	q.Set("Cid", "")
	q.Set("Cart", "")
	q.Set("SubType", "")
	q.Set("Brand", "")
	q.Set("ProductListType", req.ProductListType)
	q.Set("Mobdev", "False")
	q.Set("Detailed", "True")
	return q
}

type pagePayload struct {
	ProductList []json.RawMessage `json:"ProductList"`
	Result      flexBool          `json:"result"`
}

// DecodePage parses a listing body. A missing ProductList is an empty page;
// entries that are not JSON objects are counted and skipped.
func DecodePage(body []byte) (*PageResult, error) {
	var payload pagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	result := &PageResult{
		Records: make([]offer.RawProduct, 0, len(payload.ProductList)),
		HasMore: bool(payload.Result),
	}
	for _, item := range payload.ProductList {
		var raw offer.RawProduct
		if err := json.Unmarshal(item, &raw); err != nil {
			result.Malformed++
			continue
		}
		result.Records = append(result.Records, raw)
	}
	return result, nil
}

// flexBool accepts true/false, "true"/"false" (any case), 1/0 and null.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch s {
	case "true", "1", "yes":
		*b = true
	default:
		*b = false
	}
	return nil
}
