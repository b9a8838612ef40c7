package token

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"offers-harvester/internal/config"
	"offers-harvester/internal/observability"
)

// Request is an outgoing request observed in a browser session.
type Request struct {
	URL     string
	Headers map[string]string
}

// Header looks a header up case-insensitively.
func (r Request) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Browser opens automated browsing sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one browsing session. OnRequest handlers may be called from
// another goroutine.
type Session interface {
	OnRequest(handler func(Request))
	Navigate(ctx context.Context, url string) error
	// ClickOption clicks the first element matching selector whose text
	// contains text. It reports false when no such element shows up.
	ClickOption(ctx context.Context, selector, text string) (bool, error)
	Close() error
}

// Target describes where the credential is captured from.
type Target struct {
	RootURL        string
	ListingURL     string
	APIPathPattern string
	LocaleSelector string
	LocaleText     string
}

// TargetFromConfig resolves the listing path against the site root.
func TargetFromConfig(site config.SiteConfig) (Target, error) {
	root, err := url.Parse(site.RootURL)
	if err != nil {
		return Target{}, fmt.Errorf("parse root url: %w", err)
	}
	listing, err := root.Parse(site.ListingPath)
	if err != nil {
		return Target{}, fmt.Errorf("parse listing path: %w", err)
	}
	return Target{
		RootURL:        root.String(),
		ListingURL:     listing.String(),
		APIPathPattern: site.APIPathPattern,
		LocaleSelector: site.LocaleSelector,
		LocaleText:     site.LocaleText,
	}, nil
}

type Acquirer struct {
	browser       Browser
	target        Target
	timeout       time.Duration
	localeTimeout time.Duration
	logger        *observability.Logger
	metrics       *observability.Metrics
}

func NewAcquirer(browser Browser, target Target, timeout, localeTimeout time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Acquirer {
	return &Acquirer{
		browser:       browser,
		target:        target,
		timeout:       timeout,
		localeTimeout: localeTimeout,
		logger:        logger,
		metrics:       metrics,
	}
}

// Acquire opens a session, walks to the listing page and returns the bearer
// token of the first authorized API request it sees. The session is closed
// before returning on every path.
func (a *Acquirer) Acquire(ctx context.Context) (cred Credential, err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	session, err := a.browser.Open(ctx)
	if err != nil {
		return "", &AcquisitionError{Reason: ReasonNavigation, Cause: fmt.Errorf("open session: %w", err)}
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			a.logger.Warn("Failed to close browser session", "error", closeErr.Error())
		}
		a.metrics.ObserveToken(time.Since(start))
	}()

	found := make(chan Credential, 1)
	var once sync.Once
	session.OnRequest(func(r Request) {
		token, ok := a.match(r)
		if !ok {
			return
		}
		once.Do(func() {
			found <- token
		})
	})

	if err := a.walk(ctx, session); err != nil {
		// A credential seen before the failure still counts.
		select {
		case token := <-found:
			return a.done(token, start), nil
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		return "", &AcquisitionError{Reason: ReasonNavigation, Cause: err}
	}

	select {
	case token := <-found:
		return a.done(token, start), nil
	case <-ctx.Done():
		return "", &AcquisitionError{Reason: ReasonNoAuthObserved, Cause: ctx.Err()}
	}
}

func (a *Acquirer) walk(ctx context.Context, session Session) error {
	a.logger.Debug("Opening site root", "url", a.target.RootURL)
	if err := session.Navigate(ctx, a.target.RootURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", a.target.RootURL, err)
	}

	if a.target.LocaleSelector != "" && a.target.LocaleText != "" {
		localeCtx, cancel := context.WithTimeout(ctx, a.localeTimeout)
		clicked, err := session.ClickOption(localeCtx, a.target.LocaleSelector, a.target.LocaleText)
		cancel()
		switch {
		case err != nil && ctx.Err() != nil:
			return fmt.Errorf("select locale: %w", err)
		case err != nil:
			a.logger.Warn("Locale selection failed, continuing", "text", a.target.LocaleText, "error", err.Error())
		case !clicked:
			a.logger.Debug("Locale option not present", "selector", a.target.LocaleSelector)
		}
	}

	a.logger.Debug("Opening listing page", "url", a.target.ListingURL)
	if err := session.Navigate(ctx, a.target.ListingURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", a.target.ListingURL, err)
	}
	return nil
}

func (a *Acquirer) match(r Request) (Credential, bool) {
	if !strings.Contains(r.URL, a.target.APIPathPattern) {
		return "", false
	}
	auth := strings.TrimSpace(r.Header("Authorization"))
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return Credential(token), true
}

func (a *Acquirer) done(token Credential, start time.Time) Credential {
	a.logger.Info("Captured bearer token",
		"token", token.Redacted(),
		"elapsed", observability.Elapsed(start),
	)
	return token
}
