package spotter

import (
	"errors"
	"fmt"
	"image"
	"time"

	"jordanella.com/spotter-go/internal/cv"
	"jordanella.com/spotter-go/pkg/patterns"
)

// Region is a rectangular sub-area of the screen, the unit against which
// matching operations are scoped. A Region keeps a per-needle cache of its
// last successful match so repeated finds can scan a narrowed window first.
//
// Regions are not safe for concurrent use; the cache is last-write-wins.
type Region struct {
	session *Session
	X, Y    int
	W, H    int

	cache map[string]cacheEntry
}

// cacheEntry remembers where a needle last matched, in region-relative
// coordinates.
type cacheEntry struct {
	rect  image.Rectangle
	score float64
	at    time.Time
}

func (r *Region) String() string {
	return fmt.Sprintf("[X:%d, Y:%d, W:%d, H:%d]", r.X, r.Y, r.W, r.H)
}

// Rect returns the region's rectangle in screen coordinates.
func (r *Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Shift moves the region's origin, e.g. after the target window moved.
// Cached match locations are relative to the origin and stay valid only if
// the content moved with it; the cache is dropped to stay conservative.
func (r *Region) Shift(x, y int) {
	r.X = x
	r.Y = y
	r.cache = make(map[string]cacheEntry)
}

// FindOption adjusts a single matching call.
type FindOption func(*findOptions)

type findOptions struct {
	threshold float64
	cached    bool
}

// Threshold overrides the session's default minimum similarity.
func Threshold(t float64) FindOption {
	return func(o *findOptions) { o.threshold = t }
}

// Cached narrows the first scan to the vicinity of this needle's last match
// in this region. On a miss the full region is scanned before failing, so a
// cached find never produces a false negative relative to a full search.
func Cached() FindOption {
	return func(o *findOptions) { o.cached = true }
}

func (r *Region) findOptions(opts []FindOption) findOptions {
	o := findOptions{threshold: r.session.settings.DefaultThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// capture snapshots the region. The returned buffer is anchored at (0,0),
// so locations within it are region-relative.
func (r *Region) capture() (*image.RGBA, error) {
	if r.W <= 0 || r.H <= 0 {
		return nil, &BoundsError{Rect: r.Rect()}
	}
	return r.session.capturer.Capture(r.Rect())
}

// Find returns the highest-scoring occurrence of pat within the region.
// Fails with *FindFailedError when nothing scores at or above the
// threshold. A successful find updates the region's cache entry for pat.
func (r *Region) Find(pat *patterns.Pattern, opts ...FindOption) (*Match, error) {
	start := time.Now()
	o := r.findOptions(opts)

	frame, err := r.capture()
	if err != nil {
		return nil, err
	}

	var result *cv.MatchResult
	if o.cached {
		if entry, ok := r.cache[pat.Key()]; ok {
			if narrowed, ok := r.narrowed(entry.rect, pat, frame.Bounds()); ok {
				res, err := cv.FindTemplate(frame, pat.Image(), &cv.MatchConfig{
					Threshold:    o.threshold,
					SearchRegion: &narrowed,
				})
				if err != nil {
					return nil, err
				}
				if res.Found {
					result = res
				} else {
					r.session.log.Debug("cached search missed, falling back to full scan",
						map[string]interface{}{"pattern": pat.Name, "region": r.String()})
				}
			}
		}
	}

	if result == nil {
		result, err = cv.FindTemplate(frame, pat.Image(), &cv.MatchConfig{Threshold: o.threshold})
		if err != nil {
			return nil, err
		}
	}

	if !result.Found {
		err := &FindFailedError{
			Pattern:   pat.Name,
			Region:    r.String(),
			Best:      result.Confidence,
			Threshold: o.threshold,
		}
		r.session.record(Event{
			Kind: "find", Pattern: pat.Name, Region: r.String(),
			Score: result.Confidence, Duration: time.Since(start), Error: err.Error(),
		})
		return nil, err
	}

	match := newMatch(r, pat, result)
	r.cache[pat.Key()] = cacheEntry{
		rect:  match.Rect(),
		score: match.Score,
		at:    time.Now(),
	}
	r.session.log.Debug("found pattern", map[string]interface{}{
		"pattern": pat.Name, "region": r.String(), "score": match.Score,
	})
	r.session.record(Event{
		Kind: "find", Pattern: pat.Name, Region: r.String(),
		Score: match.Score, Found: true, Duration: time.Since(start),
	})
	return match, nil
}

// narrowed expands a cached rectangle by the session cache margin and clamps
// it to the frame. Returns false when the window cannot hold the needle.
func (r *Region) narrowed(cached image.Rectangle, pat *patterns.Pattern, frame image.Rectangle) (image.Rectangle, bool) {
	margin := r.session.settings.CacheMargin
	window := image.Rect(
		cached.Min.X-margin, cached.Min.Y-margin,
		cached.Max.X+margin, cached.Max.Y+margin,
	).Intersect(frame)

	if window.Dx() < pat.Width() || window.Dy() < pat.Height() {
		return image.Rectangle{}, false
	}
	return window, true
}

// FindAll returns every non-overlapping occurrence of pat scoring at or
// above the threshold, ordered by descending score. The search always
// covers the full region: non-max suppression needs the whole search space,
// so the cache is neither consulted nor updated.
func (r *Region) FindAll(pat *patterns.Pattern, opts ...FindOption) ([]*Match, error) {
	start := time.Now()
	o := r.findOptions(opts)

	frame, err := r.capture()
	if err != nil {
		return nil, err
	}

	results, err := cv.FindTemplateAll(frame, pat.Image(), &cv.MatchConfig{Threshold: o.threshold})
	if err != nil {
		return nil, err
	}

	matches := make([]*Match, 0, len(results))
	for i := range results {
		matches = append(matches, newMatch(r, pat, &results[i]))
	}
	r.session.record(Event{
		Kind: "find_all", Pattern: pat.Name, Region: r.String(),
		Found: len(matches) > 0, Duration: time.Since(start),
	})
	return matches, nil
}

// Exists is Find except that absence is an expected outcome: it returns
// (nil, nil) instead of *FindFailedError. All other errors propagate.
func (r *Region) Exists(pat *patterns.Pattern, opts ...FindOption) (*Match, error) {
	match, err := r.Find(pat, opts...)
	if err != nil {
		var notFound *FindFailedError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return match, nil
}

// Wait polls for pat until it appears or timeout elapses. Fails with
// *FindFailedError on timeout; capture and matching errors abort the wait
// immediately.
func (r *Region) Wait(pat *patterns.Pattern, timeout time.Duration, opts ...FindOption) (*Match, error) {
	start := time.Now()

	var match *Match
	ok, err := poll(timeout, r.session.settings.ScanInterval, func() (bool, error) {
		m, err := r.Exists(pat, opts...)
		if err != nil {
			return false, err
		}
		match = m
		return m != nil, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		err := &FindFailedError{Pattern: pat.Name, Region: r.String(), Timeout: timeout}
		r.session.record(Event{
			Kind: "wait", Pattern: pat.Name, Region: r.String(),
			Duration: time.Since(start), Error: err.Error(),
		})
		return nil, err
	}

	r.session.record(Event{
		Kind: "wait", Pattern: pat.Name, Region: r.String(),
		Score: match.Score, Found: true, Duration: time.Since(start),
	})
	return match, nil
}

// WaitVanish polls until pat no longer matches. Fails with
// *VanishFailedError when the pattern remains matchable through the whole
// timeout.
func (r *Region) WaitVanish(pat *patterns.Pattern, timeout time.Duration, opts ...FindOption) error {
	start := time.Now()

	ok, err := poll(timeout, r.session.settings.ScanInterval, func() (bool, error) {
		m, err := r.Exists(pat, opts...)
		if err != nil {
			return false, err
		}
		return m == nil, nil
	})
	if err != nil {
		return err
	}
	if !ok {
		err := &VanishFailedError{Pattern: pat.Name, Region: r.String(), Timeout: timeout}
		r.session.record(Event{
			Kind: "wait_vanish", Pattern: pat.Name, Region: r.String(),
			Duration: time.Since(start), Error: err.Error(),
		})
		return err
	}

	r.session.record(Event{
		Kind: "wait_vanish", Pattern: pat.Name, Region: r.String(),
		Found: true, Duration: time.Since(start),
	})
	return nil
}

// Text captures the region and runs OCR over it. Results are never cached:
// the region cache is scoped to image-match rectangles.
func (r *Region) Text() (string, error) {
	frame, err := r.capture()
	if err != nil {
		return "", err
	}
	return r.session.ocr.Recognize(frame)
}
