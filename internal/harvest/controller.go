package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"offers-harvester/internal/config"
	"offers-harvester/internal/fetcher"
	"offers-harvester/internal/observability"
	"offers-harvester/internal/offer"
	"offers-harvester/internal/storage"
	"offers-harvester/internal/token"
)

type State int

const (
	StateIdle State = iota
	StateFetchingPage
	StateTransforming
	StatePersisting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingPage:
		return "fetching-page"
	case StateTransforming:
		return "transforming"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stop reasons reported in Result.StoppedReason.
const (
	StopMaxPages       = "max-pages"
	StopNoMoreProducts = "no-more-products"
	StopShortPage      = "short-page"
)

// PageFetcher is satisfied by *fetcher.Fetcher.
type PageFetcher interface {
	FetchPage(ctx context.Context, cred token.Credential, req fetcher.PageRequest) (*fetcher.PageResult, error)
}

// Session is the mutable state of one run.
type Session struct {
	Page     int
	Offers   []offer.Derived
	Continue bool
	State    State
}

type Result struct {
	Dataset       string
	State         State
	Pages         int
	RawRecords    int
	Accepted      int
	Writes        int
	StoppedReason string
}

type Controller struct {
	run         config.RunConfig
	fetcher     PageFetcher
	transformer *offer.Transformer
	writer      storage.Writer
	logger      *observability.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewController(
	run config.RunConfig,
	f PageFetcher,
	t *offer.Transformer,
	w storage.Writer,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Controller {
	return &Controller{
		run:         run,
		fetcher:     f,
		transformer: t,
		writer:      w,
		logger:      logger.With("run", run.Name, "dataset", run.Dataset),
		metrics:     metrics,
		now:         time.Now,
	}
}

// WithClock replaces the timestamp source.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Run pages through the listing until a stop condition holds, persisting the
// accumulated offers after every page. On failure the returned Result still
// describes the pages that were persisted.
func (c *Controller) Run(ctx context.Context, cred token.Credential) (*Result, error) {
	start := time.Now()
	res := &Result{Dataset: c.run.Dataset}
	sess := &Session{State: StateIdle}

	c.logger.Info("Starting harvest",
		"category", c.run.Category,
		"product_list_type", c.run.ProductListType,
		"offer_type", c.run.OfferType,
		"threshold", c.run.Threshold,
		"max_pages", c.run.MaxPages,
		"page_size", c.run.PageSize,
	)

	var (
		page *fetcher.PageResult
		err  error
	)

	for sess.State != StateDone && sess.State != StateFailed {
		switch sess.State {
		case StateIdle:
			sess.Page = 1
			sess.Offers = []offer.Derived{}
			sess.State = StateFetchingPage

		case StateFetchingPage:
			if err = ctx.Err(); err != nil {
				sess.State = StateFailed
				break
			}
			page, err = c.fetcher.FetchPage(ctx, cred, fetcher.PageRequest{
				Category:        c.run.Category,
				ProductListType: c.run.ProductListType,
				Page:            sess.Page,
				PageSize:        c.run.PageSize,
			})
			if err != nil {
				c.recordFetchError(sess.Page, err)
				err = fmt.Errorf("fetch page %d: %w", sess.Page, err)
				sess.State = StateFailed
				break
			}
			res.Pages++
			res.RawRecords += len(page.Records)
			sess.Continue = page.HasMore
			c.metrics.IncPage(c.run.Dataset)
			sess.State = StateTransforming

		case StateTransforming:
			accepted := 0
			for _, raw := range page.Records {
				d, ok := c.transformer.Transform(raw)
				if !ok {
					continue
				}
				sess.Offers = append(sess.Offers, d)
				accepted++
			}
			res.Accepted += accepted
			rejected := len(page.Records) - accepted
			c.metrics.AddRecords(c.run.Dataset, "accepted", accepted)
			c.metrics.AddRecords(c.run.Dataset, "rejected", rejected)
			c.metrics.AddRecords(c.run.Dataset, "malformed", page.Malformed)

			c.logger.Info("Page processed",
				"page", sess.Page,
				"records", len(page.Records),
				"accepted", accepted,
				"malformed", page.Malformed,
				"total", len(sess.Offers),
				"has_more", page.HasMore,
			)
			sess.State = StatePersisting

		case StatePersisting:
			if err = c.persist(ctx, sess.Offers); err != nil {
				err = fmt.Errorf("persist page %d: %w", sess.Page, err)
				sess.State = StateFailed
				break
			}
			res.Writes++

			if reason := c.stopReason(sess.Page, page); reason != "" {
				res.StoppedReason = reason
				sess.State = StateDone
				break
			}
			sess.Page++
			sess.State = StateFetchingPage
		}
	}

	res.State = sess.State
	if sess.State == StateFailed {
		c.logger.Error("Harvest failed",
			"pages", res.Pages,
			"writes", res.Writes,
			"offers", len(sess.Offers),
			"error", err.Error(),
			"elapsed", observability.Elapsed(start),
		)
		return res, err
	}

	c.logger.Info("Harvest completed",
		"pages", res.Pages,
		"raw_records", res.RawRecords,
		"offers", res.Accepted,
		"writes", res.Writes,
		"reason", res.StoppedReason,
		"elapsed", observability.Elapsed(start),
	)
	return res, nil
}

func (c *Controller) persist(ctx context.Context, offers []offer.Derived) error {
	if err := c.writer.Write(ctx, c.run.Dataset, offers); err != nil {
		return err
	}
	at := c.now()
	if err := c.writer.WriteTimestamp(ctx, at); err != nil {
		return err
	}
	c.metrics.SetSnapshot(c.run.Dataset, len(offers), at)
	return nil
}

// stopReason applies the stop conditions in precedence order. Empty means
// fetch the next page.
func (c *Controller) stopReason(pageNum int, page *fetcher.PageResult) string {
	switch {
	case pageNum >= c.run.MaxPages:
		return StopMaxPages
	case len(page.Records) == 0 || !page.HasMore:
		return StopNoMoreProducts
	case len(page.Records) < c.run.PageSize:
		return StopShortPage
	}
	return ""
}

func (c *Controller) recordFetchError(pageNum int, err error) {
	kind := "other"
	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		kind = fe.Kind()
	} else if errors.Is(err, context.Canceled) {
		kind = "canceled"
	}
	c.metrics.IncFetchError(c.run.Dataset, kind)
	c.logger.Warn("Fetch failed",
		"page", pageNum,
		"kind", kind,
		"error", err.Error(),
	)
}
