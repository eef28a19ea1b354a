package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ScrollSpeed is the qualitative speed a page is scrolled at
type ScrollSpeed string

const (
	SpeedFast   ScrollSpeed = "fast"
	SpeedMedium ScrollSpeed = "medium"
	SpeedSlow   ScrollSpeed = "slow"
)

// ScrollDirection controls where scrolling starts and how it advances
type ScrollDirection string

const (
	DirectionDown ScrollDirection = "down"
	DirectionUp   ScrollDirection = "up"
	DirectionLoop ScrollDirection = "loop"
)

// DefaultResolution is used when a request omits the resolution
const DefaultResolution = "1920x1080"

// Viewport is the browser viewport and video frame size in pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// CaptureRequest is a validated request to record a page
type CaptureRequest struct {
	URL             string
	ScrollSpeed     ScrollSpeed
	Viewport        Viewport
	ScrollDirection ScrollDirection
	HideElements    []string
	// Duration is an explicit capture length in seconds; nil means estimate from page height.
	Duration *float64
}

// GenerateRequest is the payload for POST /api/generate-background
type GenerateRequest struct {
	URL             string   `json:"url"`
	ScrollSpeed     string   `json:"scrollSpeed"`
	Resolution      string   `json:"resolution,omitempty"`
	ScrollDirection string   `json:"scrollDirection,omitempty"`
	HideElements    []string `json:"hideElements,omitempty"`
	Duration        *float64 `json:"duration,omitempty"`
}

// GenerateResponse is returned once the video is stored
type GenerateResponse struct {
	VideoURL  string `json:"videoUrl"`
	CaptureID string `json:"captureId,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Detail  []string `json:"detail,omitempty"` // development only
}

// ValidationError reports a malformed generate request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate applies defaults and converts the payload into a CaptureRequest
func (r GenerateRequest) Validate() (CaptureRequest, error) {
	if r.URL == "" || r.ScrollSpeed == "" {
		return CaptureRequest{}, &ValidationError{Field: "url", Message: "URL and scrollSpeed are required"}
	}

	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return CaptureRequest{}, &ValidationError{Field: "url", Message: "url must be an absolute http(s) URL"}
	}

	speed := ScrollSpeed(r.ScrollSpeed)
	switch speed {
	case SpeedFast, SpeedMedium, SpeedSlow:
	default:
		return CaptureRequest{}, &ValidationError{Field: "scrollSpeed", Message: "scrollSpeed must be fast, medium, or slow"}
	}

	direction := ScrollDirection(r.ScrollDirection)
	if direction == "" {
		direction = DirectionDown
	}
	switch direction {
	case DirectionDown, DirectionUp, DirectionLoop:
	default:
		return CaptureRequest{}, &ValidationError{Field: "scrollDirection", Message: "scrollDirection must be down, up, or loop"}
	}

	resolution := r.Resolution
	if resolution == "" {
		resolution = DefaultResolution
	}
	viewport, err := ParseResolution(resolution)
	if err != nil {
		return CaptureRequest{}, &ValidationError{Field: "resolution", Message: err.Error()}
	}

	if r.Duration != nil && *r.Duration <= 0 {
		return CaptureRequest{}, &ValidationError{Field: "duration", Message: "Duration must be a positive number in seconds"}
	}

	hide := make([]string, 0, len(r.HideElements))
	for _, sel := range r.HideElements {
		if strings.TrimSpace(sel) != "" {
			hide = append(hide, sel)
		}
	}

	req := CaptureRequest{
		URL:             r.URL,
		ScrollSpeed:     speed,
		Viewport:        viewport,
		ScrollDirection: direction,
		HideElements:    hide,
	}
	if r.Duration != nil {
		d := *r.Duration
		req.Duration = &d
	}
	return req, nil
}

// ParseResolution parses a "WxH" string
func ParseResolution(s string) (Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return Viewport{}, fmt.Errorf("resolution must look like 1920x1080, got %q", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return Viewport{}, fmt.Errorf("invalid resolution width in %q", s)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return Viewport{}, fmt.Errorf("invalid resolution height in %q", s)
	}
	return Viewport{Width: width, Height: height}, nil
}

// CaptureState is a step of the capture lifecycle
type CaptureState string

const (
	StateIdle             CaptureState = "IDLE"
	StateBrowserLaunching CaptureState = "BROWSER_LAUNCHING"
	StatePriming          CaptureState = "PRIMING"
	StateSessionCaptured  CaptureState = "SESSION_CAPTURED"
	StatePrimingClosed    CaptureState = "PRIMING_CLOSED"
	StateRecordingOpen    CaptureState = "RECORDING_OPEN"
	StateStabilizing      CaptureState = "STABILIZING"
	StateElementsHidden   CaptureState = "ELEMENTS_HIDDEN"
	StateScrolling        CaptureState = "SCROLLING"
	StateFinalizing       CaptureState = "FINALIZING"
	StateDone             CaptureState = "DONE"
	StateFailed           CaptureState = "FAILED"
)

// Terminal reports whether no further transitions can happen
func (s CaptureState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Capture is the registry view of a single capture
type Capture struct {
	ID              string          `json:"id"`
	URL             string          `json:"url"`
	ScrollSpeed     ScrollSpeed     `json:"scrollSpeed"`
	ScrollDirection ScrollDirection `json:"scrollDirection"`
	Resolution      string          `json:"resolution"`
	State           CaptureState    `json:"state"`
	StartedAt       time.Time       `json:"startedAt"`
	FinishedAt      *time.Time      `json:"finishedAt,omitempty"`
	DurationSeconds float64         `json:"durationSeconds,omitempty"`
	VideoURL        string          `json:"videoUrl,omitempty"`
	Error           string          `json:"error,omitempty"`
	ConnectURL      string          `json:"-"` // CDP endpoint when the browser runs in a container
}
