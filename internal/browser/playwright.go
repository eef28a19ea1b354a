package browser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
)

type pwBrowser struct {
	browser    playwright.Browser
	connectURL string
	// release runs after the browser is closed, e.g. to stop its container.
	release func() error
}

func (b *pwBrowser) NewContext(opts ContextOptions) (Context, error) {
	size := &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}

	options := playwright.BrowserNewContextOptions{
		Viewport:        size,
		AcceptDownloads: playwright.Bool(opts.AcceptDownloads),
	}
	if opts.BlockServiceWorkers {
		options.ServiceWorkers = playwright.ServiceWorkerPolicyBlock
	}
	if opts.RecordVideoDir != "" {
		options.RecordVideo = &playwright.RecordVideo{
			Dir:  opts.RecordVideoDir,
			Size: size,
		}
	}
	if opts.StorageState != nil {
		state, err := toPlaywrightState(*opts.StorageState)
		if err != nil {
			return nil, err
		}
		options.StorageState = state
	}

	ctx, err := b.browser.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &pwContext{ctx: ctx}, nil
}

func (b *pwBrowser) ConnectURL() string {
	return b.connectURL
}

func (b *pwBrowser) Close() error {
	err := b.browser.Close()
	if b.release != nil {
		if relErr := b.release(); relErr != nil && err == nil {
			err = relErr
		}
	}
	return err
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) StorageState() (StorageState, error) {
	state, err := c.ctx.StorageState()
	if err != nil {
		return StorageState{}, fmt.Errorf("failed to read storage state: %w", err)
	}
	return fromPlaywrightState(state)
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) SetDefaultTimeout(d time.Duration) {
	ms := float64(d.Milliseconds())
	p.page.SetDefaultTimeout(ms)
	p.page.SetDefaultNavigationTimeout(ms)
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	return err
}

func (p *pwPage) WaitForNetworkIdle() error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	})
}

func (p *pwPage) Evaluate(expression string, arg any) (any, error) {
	if arg == nil {
		return p.page.Evaluate(expression)
	}
	return p.page.Evaluate(expression, arg)
}

func (p *pwPage) ButtonByName(name *regexp.Regexp) Locator {
	return &pwLocator{loc: p.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{
		Name: name,
	})}
}

func (p *pwPage) Locator(selector string) Locator {
	return &pwLocator{loc: p.page.Locator(selector)}
}

func (p *pwPage) ExpectNavigation(action func() error, window time.Duration) error {
	var actionErr error
	// The navigation error is deliberately dropped: most consent clicks do not navigate.
	_, _ = p.page.ExpectNavigation(func() error {
		actionErr = action()
		return actionErr
	}, playwright.PageExpectNavigationOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(window.Milliseconds())),
	})
	return actionErr
}

func (p *pwPage) VideoPath() (string, error) {
	video := p.page.Video()
	if video == nil {
		return "", ErrNoVideo
	}
	return video.Path()
}

type pwLocator struct {
	loc playwright.Locator
}

func (l *pwLocator) Count() (int, error) {
	return l.loc.Count()
}

func (l *pwLocator) First() Locator {
	return &pwLocator{loc: l.loc.First()}
}

func (l *pwLocator) Click() error {
	return l.loc.Click()
}

// The browser-side storage state and ours share a JSON shape, so conversions go through JSON.

func toPlaywrightState(s StorageState) (*playwright.OptionalStorageState, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage state: %w", err)
	}
	var out playwright.OptionalStorageState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode storage state: %w", err)
	}
	return &out, nil
}

func fromPlaywrightState(s *playwright.StorageState) (StorageState, error) {
	if s == nil {
		return StorageState{}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return StorageState{}, fmt.Errorf("failed to encode storage state: %w", err)
	}
	var out StorageState
	if err := json.Unmarshal(raw, &out); err != nil {
		return StorageState{}, fmt.Errorf("failed to decode storage state: %w", err)
	}
	return out, nil
}
