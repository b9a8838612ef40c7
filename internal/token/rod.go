package token

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"offers-harvester/internal/config"
)

// RodBrowser launches a local Chrome through go-rod for every session.
type RodBrowser struct {
	ChromePath      string
	Headless        bool
	UserAgent       string
	WaitLoadTimeout time.Duration
}

func NewRodBrowser(cfg *config.Config) *RodBrowser {
	return &RodBrowser{
		ChromePath:      cfg.Rod.ChromePath,
		Headless:        cfg.Rod.Headless,
		UserAgent:       cfg.HTTP.UserAgent,
		WaitLoadTimeout: cfg.GetRodWaitLoadTimeout(),
	}
}

func (b *RodBrowser) Open(ctx context.Context) (Session, error) {
	l := launcher.New().Context(ctx).Headless(b.Headless)
	if b.ChromePath != "" {
		l = l.Bin(b.ChromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	s := &rodSession{launcher: l, browser: browser, waitLoad: b.WaitLoadTimeout}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page.Context(s.ctx)

	if b.UserAgent != "" {
		if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.UserAgent}); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	if err := (proto.NetworkEnable{}).Call(s.page); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	waitLoad time.Duration

	// ctx bounds event subscriptions to the session's lifetime
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *rodSession) OnRequest(handler func(Request)) {
	wait := s.page.EachEvent(func(e *proto.NetworkRequestWillBeSent) {
		if e.Request == nil {
			return
		}
		headers := make(map[string]string, len(e.Request.Headers))
		for k, v := range e.Request.Headers {
			headers[k] = v.Str()
		}
		handler(Request{URL: e.Request.URL, Headers: headers})
	})
	go wait()
}

// Navigate loads url and waits for the load event. A slow load event is
// tolerated: the requests the page issued are what matter.
func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	if s.waitLoad <= 0 {
		return nil
	}
	if err := p.Timeout(s.waitLoad).WaitLoad(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil
		}
		return err
	}
	return nil
}

func (s *rodSession) ClickOption(ctx context.Context, selector, text string) (bool, error) {
	el, err := s.page.Context(ctx).ElementR(selector, regexp.QuoteMeta(text))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	// Script click: the option may be covered by an overlay.
	if _, err := el.Eval(`() => this.click()`); err != nil {
		return false, fmt.Errorf("click %s: %w", selector, err)
	}
	return true, nil
}

func (s *rodSession) Close() error {
	s.cancel()
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}
