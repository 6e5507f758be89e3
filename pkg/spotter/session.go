// Package spotter locates reference images on screen and drives pointer
// actions against the matched locations. Regions scope the search, Matches
// are the located occurrences.
package spotter

import (
	"image"
	"math/rand"
	"time"

	"jordanella.com/spotter-go/internal/logging"
	"jordanella.com/spotter-go/internal/screen"
)

// Capturer produces pixel snapshots of screen rectangles. The returned
// buffer's dimensions must exactly match the requested rectangle.
type Capturer interface {
	Capture(rect image.Rectangle) (*image.RGBA, error)
}

// Pointer drives the mouse at absolute screen coordinates.
type Pointer interface {
	Move(x, y int)
	Click(x, y int)
}

// OCR recognizes text in a pixel buffer, best effort.
type OCR interface {
	Recognize(img *image.RGBA) (string, error)
}

// Recorder receives match and pointer events, e.g. for offline threshold
// tuning. See pkg/journal for the sqlite implementation.
type Recorder interface {
	Record(ev Event)
}

// Event describes one engine operation for a Recorder.
type Event struct {
	Kind     string // find, find_all, wait, wait_vanish, click, hover, text
	Pattern  string
	Region   string
	Score    float64
	Found    bool
	Duration time.Duration
	Error    string
	At       time.Time
}

// Settings are the tunable engine parameters, loadable from INI through
// pkg/config.
type Settings struct {
	DefaultThreshold float64       // minimum similarity for a match
	ScanInterval     time.Duration // wait/wait-vanish poll interval
	CacheMargin      int           // pixels of drift tolerated around a cached rectangle
	OCRLanguage      string
	LogLevel         string // debug, info, warn, error
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		DefaultThreshold: 0.8,
		ScanInterval:     50 * time.Millisecond,
		CacheMargin:      16,
		OCRLanguage:      "eng",
		LogLevel:         "info",
	}
}

// Session owns the collaborators and tunables shared by every Region it
// creates. All operations are synchronous and run on the caller's
// goroutine.
type Session struct {
	capturer Capturer
	pointer  Pointer
	ocr      OCR
	recorder Recorder

	settings   Settings
	rng        *rand.Rand
	log        *logging.Logger
	screenSize func() (int, int)

	clickHook func(x, y int)
	hoverHook func(x, y int)
}

// Option configures a Session.
type Option func(*Session)

// WithCapturer replaces the screen capture collaborator.
func WithCapturer(c Capturer) Option {
	return func(s *Session) { s.capturer = c }
}

// WithPointer replaces the pointer collaborator.
func WithPointer(p Pointer) Option {
	return func(s *Session) { s.pointer = p }
}

// WithOCR replaces the OCR collaborator.
func WithOCR(o OCR) Option {
	return func(s *Session) { s.ocr = o }
}

// WithRecorder attaches an event recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithSettings replaces the engine settings wholesale.
func WithSettings(settings Settings) Option {
	return func(s *Session) { s.settings = settings }
}

// WithRand supplies the random source used for click/hover targeting.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// WithScreenSize overrides the detected screen dimensions used for
// full-screen regions.
func WithScreenSize(w, h int) Option {
	return func(s *Session) {
		s.screenSize = func() (int, int) { return w, h }
	}
}

// WithClickHook registers a callback invoked after every click with the
// absolute point that was clicked.
func WithClickHook(hook func(x, y int)) Option {
	return func(s *Session) { s.clickHook = hook }
}

// WithHoverHook registers a callback invoked after every hover with the
// absolute point the pointer moved to.
func WithHoverHook(hook func(x, y int)) Option {
	return func(s *Session) { s.hoverHook = hook }
}

// NewSession creates a Session backed by the real screen, pointer and OCR
// unless overridden by options.
func NewSession(opts ...Option) *Session {
	s := &Session{
		settings:   DefaultSettings(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		screenSize: screen.Size,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.capturer == nil {
		s.capturer = screen.NewCapturer()
	}
	if s.pointer == nil {
		s.pointer = screen.NewPointer()
	}
	if s.ocr == nil {
		s.ocr = screen.NewOCR(s.settings.OCRLanguage)
	}

	s.log = logging.NewLogger("spotter").SetMinLevel(logLevel(s.settings.LogLevel))

	return s
}

// Region creates a region anchored at (x, y) in screen coordinates.
func (s *Session) Region(x, y, w, h int) *Region {
	return &Region{
		session: s,
		X:       x,
		Y:       y,
		W:       w,
		H:       h,
		cache:   make(map[string]cacheEntry),
	}
}

// FullScreen creates a region covering the whole screen.
func (s *Session) FullScreen() *Region {
	w, h := s.screenSize()
	return s.Region(0, 0, w, h)
}

func (s *Session) record(ev Event) {
	if s.recorder == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.recorder.Record(ev)
}

func logLevel(name string) logging.LogLevel {
	switch name {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
