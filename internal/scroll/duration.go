// Package scroll computes capture durations and drives the timed scroll sequence.
package scroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

// ErrInvalidSpeed is returned for a speed other than fast, medium or slow
var ErrInvalidSpeed = errors.New("invalid scroll speed")

// pixelsPerUnit is the page height that one multiplier-second covers.
const pixelsPerUnit = 1000.0

var speedMultiplier = map[models.ScrollSpeed]float64{
	models.SpeedFast:   5,
	models.SpeedMedium: 10,
	models.SpeedSlow:   20,
}

// EstimateSeconds maps a page height and speed to a capture length in seconds
func EstimateSeconds(pageHeight float64, speed models.ScrollSpeed) (float64, error) {
	m, ok := speedMultiplier[speed]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSpeed, speed)
	}
	return pageHeight / pixelsPerUnit * m, nil
}

// Estimate is EstimateSeconds as a time.Duration
func Estimate(pageHeight float64, speed models.ScrollSpeed) (time.Duration, error) {
	s, err := EstimateSeconds(pageHeight, speed)
	if err != nil {
		return 0, err
	}
	return seconds(s), nil
}

// EffectiveDuration prefers an explicit duration over the height based estimate
func EffectiveDuration(explicit *float64, pageHeight float64, speed models.ScrollSpeed) (time.Duration, error) {
	if explicit != nil && *explicit > 0 {
		return seconds(*explicit), nil
	}
	return Estimate(pageHeight, speed)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
