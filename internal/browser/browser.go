// Package browser wraps browser automation behind the small surface the capture
// pipeline needs, so the pipeline can be exercised without a real browser.
package browser

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

// ErrNoVideo is returned by Page.VideoPath when the page's context is not recording
var ErrNoVideo = errors.New("page is not recording video")

// Launcher starts one browser per call
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is an exclusively owned browser process
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	// ConnectURL is the CDP endpoint of the browser, empty when it is not reachable remotely.
	ConnectURL() string
	Close() error
}

// Context is an isolated browsing environment with its own cookies and storage
type Context interface {
	NewPage() (Page, error)
	StorageState() (StorageState, error)
	Close() error
}

// Page is the single active page of a Context
type Page interface {
	// SetDefaultTimeout bounds navigation and element actions.
	SetDefaultTimeout(d time.Duration)
	// Goto navigates and waits for the network to go idle.
	Goto(url string) error
	WaitForNetworkIdle() error
	Evaluate(expression string, arg any) (any, error)
	// ButtonByName finds elements with role=button whose accessible name matches.
	ButtonByName(name *regexp.Regexp) Locator
	Locator(selector string) Locator
	// ExpectNavigation runs action and then waits up to window for a navigation.
	// Only the action's error is returned; no navigation within the window is not an error.
	ExpectNavigation(action func() error, window time.Duration) error
	VideoPath() (string, error)
}

// Locator is a lazy element query
type Locator interface {
	Count() (int, error)
	First() Locator
	Click() error
}

// ContextOptions configures a new Context
type ContextOptions struct {
	Viewport            models.Viewport
	AcceptDownloads     bool
	BlockServiceWorkers bool
	// RecordVideoDir enables video recording at the viewport size when set.
	RecordVideoDir string
	StorageState   *StorageState
}

// Cookie mirrors a browser cookie in storage state form
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HttpOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// NameValue is one localStorage entry
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin holds the localStorage of one origin
type Origin struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// StorageState is the serializable cookie and storage snapshot of a Context.
// Its JSON shape matches the storage state files browsers automation tools exchange.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Empty reports whether the state carries nothing worth seeding
func (s StorageState) Empty() bool {
	return len(s.Cookies) == 0 && len(s.Origins) == 0
}

// ToFloat converts a number returned from Evaluate
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
