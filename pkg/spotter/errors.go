package spotter

import (
	"fmt"
	"time"

	"jordanella.com/spotter-go/internal/cv"
	"jordanella.com/spotter-go/internal/screen"
	"jordanella.com/spotter-go/pkg/patterns"
)

// Error kinds surfaced by the engine. MatchError, BoundsError, CaptureError
// and LoadError originate in the packages that raise them and are aliased
// here so callers only need errors.As against this package.
type (
	// MatchError reports a matching pass that could not be attempted.
	MatchError = cv.MatchError
	// BoundsError reports a rectangle outside its parent bounds.
	BoundsError = cv.BoundsError
	// CaptureError reports a failed screen capture.
	CaptureError = screen.CaptureError
	// LoadError reports an unreadable or malformed pattern source.
	LoadError = patterns.LoadError
)

// FindFailedError reports that a pattern was not found in a region, either
// immediately or within a wait timeout.
type FindFailedError struct {
	Pattern   string
	Region    string
	Best      float64 // best score seen
	Threshold float64
	Timeout   time.Duration // non-zero when raised by Wait
}

func (e *FindFailedError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s not found in %s after waiting %s", e.Pattern, e.Region, e.Timeout)
	}
	return fmt.Sprintf("%s not found in %s (best score %.4f < %.4f)",
		e.Pattern, e.Region, e.Best, e.Threshold)
}

// VanishFailedError reports that a pattern remained matchable through a
// WaitVanish timeout.
type VanishFailedError struct {
	Pattern string
	Region  string
	Timeout time.Duration
}

func (e *VanishFailedError) Error() string {
	return fmt.Sprintf("%s still in %s after waiting %s", e.Pattern, e.Region, e.Timeout)
}

// IOError reports a failed screenshot write.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
