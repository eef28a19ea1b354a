package consent

import (
	"fmt"
	"regexp"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
)

// Strategy detects one kind of consent control on a page
type Strategy interface {
	Name() string
	// Detect returns the element to click, or found=false when the control is absent.
	Detect(page browser.Page) (loc browser.Locator, found bool, err error)
}

// AcceptLabels are affirmative button names, English then German
var AcceptLabels = []string{
	"Accept",
	"Accept all",
	"Accept cookies",
	"Allow cookies",
	"Allow all cookies",
	"OK",
	"Got it",
	"I understand",
	"Close",
	"Akzeptieren",
	"Alle akzeptieren",
	"Cookies zulassen",
	"Verstanden",
	"Schließen",
	"Nur notwendige Cookies",
	"Cookies akzeptieren",
}

// BannerSelectors are containers commonly used for cookie banners
var BannerSelectors = []string{
	"#cookiebot",
	".cookiebot",
	"#cookiebanner",
	".cookie-banner",
	".cookie-notice",
	".cookie-popup",
	".cookie-consent",
	`[aria-label*="cookie"]`,
	`[id*="cookie"]`,
	`[class*="cookie"]`,
	".cc-window",
	".CookieConsent",
}

var necessaryOnlyPattern = regexp.MustCompile(`(?i)nur.+notwendige`)

// DefaultStrategies is the full fallback chain: labelled buttons, banner
// containers, then a "necessary cookies only" button.
func DefaultStrategies() []Strategy {
	strategies := make([]Strategy, 0, len(AcceptLabels)+len(BannerSelectors)+1)
	for _, label := range AcceptLabels {
		strategies = append(strategies, ButtonLabel(label))
	}
	for _, sel := range BannerSelectors {
		strategies = append(strategies, BannerContainer(sel))
	}
	return append(strategies, NecessaryOnly())
}

type buttonStrategy struct {
	name    string
	pattern *regexp.Regexp
}

// ButtonLabel matches role=button elements whose name contains label, ignoring case
func ButtonLabel(label string) Strategy {
	return &buttonStrategy{
		name:    "button:" + label,
		pattern: regexp.MustCompile("(?i)" + regexp.QuoteMeta(label)),
	}
}

// NecessaryOnly matches a "necessary cookies only" style button
func NecessaryOnly() Strategy {
	return &buttonStrategy{name: "necessary-only", pattern: necessaryOnlyPattern}
}

func (s *buttonStrategy) Name() string { return s.name }

func (s *buttonStrategy) Detect(page browser.Page) (browser.Locator, bool, error) {
	return firstOf(page.ButtonByName(s.pattern))
}

type containerStrategy struct {
	selector string
	query    string
}

// BannerContainer matches the first interactive descendant of a banner container
func BannerContainer(selector string) Strategy {
	return &containerStrategy{
		selector: selector,
		query: fmt.Sprintf(`%[1]s button, %[1]s [role="button"], %[1]s a[href="#"], %[1]s [type="button"]`,
			selector),
	}
}

func (s *containerStrategy) Name() string { return "container:" + s.selector }

func (s *containerStrategy) Detect(page browser.Page) (browser.Locator, bool, error) {
	return firstOf(page.Locator(s.query))
}

func firstOf(loc browser.Locator) (browser.Locator, bool, error) {
	n, err := loc.Count()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return loc.First(), true, nil
}
