// Package browsertest provides in-memory fakes of the browser interfaces.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
)

// Journal records browser events in order across every fake sharing it
type Journal struct {
	mu     sync.Mutex
	events []string
}

func (j *Journal) Add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *Journal) Events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// Index returns the position of the first event equal to name, or -1
func (j *Journal) Index(name string) int {
	for i, e := range j.Events() {
		if e == name {
			return i
		}
	}
	return -1
}

// Launcher hands out a preconfigured Browser
type Launcher struct {
	Browser *Browser
	Err     error
}

func (l *Launcher) Launch(ctx context.Context) (browser.Browser, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	l.Browser.Journal.Add("browser.launch")
	return l.Browser, nil
}

// Browser creates Contexts from the Contexts queue in order
type Browser struct {
	Journal  *Journal
	Contexts []*Context
	Options  []browser.ContextOptions
	CloseErr error
	Closed   int
	URL      string

	mu   sync.Mutex
	next int
}

func (b *Browser) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next >= len(b.Contexts) {
		return nil, errors.New("browsertest: no more contexts")
	}
	c := b.Contexts[b.next]
	b.next++
	b.Options = append(b.Options, opts)
	c.Journal = b.Journal
	if c.Err != nil {
		return nil, c.Err
	}
	b.Journal.Add("%s.open", c.Name)
	return c, nil
}

func (b *Browser) ConnectURL() string {
	return b.URL
}

func (b *Browser) Close() error {
	b.Closed++
	b.Journal.Add("browser.close")
	return b.CloseErr
}

// Context is a fake browsing context with exactly one Page
type Context struct {
	Name     string
	Page     *Page
	State    browser.StorageState
	StateErr error
	Err      error
	CloseErr error
	Closed   int
	Journal  *Journal
}

func (c *Context) NewPage() (browser.Page, error) {
	if c.Page == nil {
		return nil, errors.New("browsertest: context has no page")
	}
	c.Page.Journal = c.Journal
	c.Page.owner = c.Name
	return c.Page, nil
}

func (c *Context) StorageState() (browser.StorageState, error) {
	c.Journal.Add("%s.state", c.Name)
	return c.State, c.StateErr
}

func (c *Context) Close() error {
	c.Closed++
	c.Journal.Add("%s.close", c.Name)
	return c.CloseErr
}

// EvalCall is one recorded Evaluate invocation
type EvalCall struct {
	Expression string
	Arg        any
}

// Page is a fake page. Buttons holds the accessible names of role=button elements,
// Elements maps CSS selectors to how many nodes match them.
type Page struct {
	Buttons  []string
	Elements map[string]int
	// ClickErr makes clicks on matching button names or selectors fail.
	ClickErr map[string]error
	CountErr map[string]error

	GotoErr      error
	IdleErr      error
	VideoFile    string
	VideoErr     error
	EvaluateFunc func(expression string, arg any) (any, error)

	Journal *Journal
	owner   string

	mu        sync.Mutex
	Visited   []string
	Clicked   []string
	Evals     []EvalCall
	Timeout   time.Duration
	IdleWaits int
	NavWaits  []time.Duration
}

func (p *Page) SetDefaultTimeout(d time.Duration) {
	p.Timeout = d
}

func (p *Page) Goto(url string) error {
	p.mu.Lock()
	p.Visited = append(p.Visited, url)
	p.mu.Unlock()
	p.Journal.Add("%s.goto", p.owner)
	return p.GotoErr
}

func (p *Page) WaitForNetworkIdle() error {
	p.mu.Lock()
	p.IdleWaits++
	p.mu.Unlock()
	return p.IdleErr
}

func (p *Page) Evaluate(expression string, arg any) (any, error) {
	p.mu.Lock()
	p.Evals = append(p.Evals, EvalCall{Expression: expression, Arg: arg})
	p.mu.Unlock()
	if p.EvaluateFunc != nil {
		return p.EvaluateFunc(expression, arg)
	}
	return nil, nil
}

func (p *Page) ButtonByName(name *regexp.Regexp) browser.Locator {
	var matches []string
	for _, b := range p.Buttons {
		if name.MatchString(b) {
			matches = append(matches, b)
		}
	}
	return &Locator{page: p, key: name.String(), names: matches}
}

func (p *Page) Locator(selector string) browser.Locator {
	var names []string
	// a selector list matches the sum of its parts
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		for i := 0; i < p.Elements[part]; i++ {
			names = append(names, part)
		}
	}
	return &Locator{page: p, key: selector, names: names}
}

func (p *Page) ExpectNavigation(action func() error, window time.Duration) error {
	p.mu.Lock()
	p.NavWaits = append(p.NavWaits, window)
	p.mu.Unlock()
	return action()
}

func (p *Page) VideoPath() (string, error) {
	if p.VideoErr != nil {
		return "", p.VideoErr
	}
	if p.VideoFile == "" {
		return "", browser.ErrNoVideo
	}
	return p.VideoFile, nil
}

// EvalCalls returns a snapshot of Evaluate calls
func (p *Page) EvalCalls() []EvalCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]EvalCall(nil), p.Evals...)
}

// Locator resolves against the fake page at construction time
type Locator struct {
	page  *Page
	key   string
	names []string
}

func (l *Locator) Count() (int, error) {
	if err := l.page.CountErr[l.key]; err != nil {
		return 0, err
	}
	return len(l.names), nil
}

func (l *Locator) First() browser.Locator {
	if len(l.names) == 0 {
		return &Locator{page: l.page, key: l.key}
	}
	return &Locator{page: l.page, key: l.key, names: l.names[:1]}
}

func (l *Locator) Click() error {
	if len(l.names) == 0 {
		return fmt.Errorf("browsertest: no element for %q", l.key)
	}
	name := l.names[0]
	if err := l.page.ClickErr[name]; err != nil {
		return err
	}
	l.page.mu.Lock()
	l.page.Clicked = append(l.page.Clicked, name)
	l.page.mu.Unlock()
	return nil
}
