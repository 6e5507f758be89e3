package spotter

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/spotter-go/pkg/patterns"
)

// textured fills an image with a deterministic non-uniform pattern.
func textured(w, h int, seed uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*31+y*17) + seed,
				G: uint8(x*13+y*41) ^ seed,
				B: uint8(x*7+y*3) + 2*seed,
				A: 255,
			})
		}
	}
	return img
}

// checker builds a black/white checkerboard, uncorrelated with textured.
func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// stamp copies needle into screen with its top-left at absolute (x, y).
func stamp(screen, needle *image.RGBA, x, y int) {
	nb := needle.Bounds()
	draw.Draw(screen, image.Rect(x, y, x+nb.Dx(), y+nb.Dy()), needle, nb.Min, draw.Src)
}

// fakeCapturer serves crops of an in-memory screen. The screen can be
// swapped between calls or selected per call via frameFn.
type fakeCapturer struct {
	frame   *image.RGBA
	frameFn func() *image.RGBA
	calls   int
}

func (f *fakeCapturer) Capture(rect image.Rectangle) (*image.RGBA, error) {
	f.calls++
	scr := f.frame
	if f.frameFn != nil {
		scr = f.frameFn()
	}
	if !rect.In(scr.Bounds()) {
		return nil, &CaptureError{Rect: rect, Err: errors.New("outside fake screen")}
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), scr, rect.Min, draw.Src)
	return out, nil
}

// fakePointer records every pointer action.
type fakePointer struct {
	moves  []image.Point
	clicks []image.Point
}

func (f *fakePointer) Move(x, y int)  { f.moves = append(f.moves, image.Point{X: x, Y: y}) }
func (f *fakePointer) Click(x, y int) { f.clicks = append(f.clicks, image.Point{X: x, Y: y}) }

// fakeOCR returns canned text.
type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) Recognize(img *image.RGBA) (string, error) { return f.text, f.err }

func newTestSession(cap *fakeCapturer, opts ...Option) (*Session, *fakePointer) {
	settings := DefaultSettings()
	settings.ScanInterval = 10 * time.Millisecond

	ptr := &fakePointer{}
	base := []Option{
		WithCapturer(cap),
		WithPointer(ptr),
		WithOCR(fakeOCR{}),
		WithSettings(settings),
		WithRand(rand.New(rand.NewSource(42))),
		WithScreenSize(200, 150),
	}
	return NewSession(append(base, opts...)...), ptr
}

func inlinePattern(t *testing.T, img *image.RGBA, name string) *patterns.Pattern {
	t.Helper()
	return patterns.FromImage(name, img)
}

func TestFindReturnsRegionRelativeMatch(t *testing.T) {
	screen := textured(200, 150, 0)
	needle := textured(12, 9, 101)
	stamp(screen, needle, 60, 40)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)

	match, err := region.Find(inlinePattern(t, needle, "button"))
	require.NoError(t, err)

	assert.Equal(t, 40, match.X)
	assert.Equal(t, 20, match.Y)
	assert.Equal(t, 12, match.W)
	assert.Equal(t, 9, match.H)
	assert.InDelta(t, 1.0, match.Score, 1e-9)
	assert.Equal(t, image.Rect(60, 40, 72, 49), match.ScreenRect())
}

func TestFindFailed(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(20, 20, 160, 120)

	_, err := region.Find(inlinePattern(t, checker(12, 9), "ghost"))

	var notFound *FindFailedError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Pattern)
	assert.Less(t, notFound.Best, notFound.Threshold)
}

func TestFindZeroSizeRegion(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(10, 10, 0, 0)

	_, err := region.Find(inlinePattern(t, textured(4, 4, 1), "any"))

	var bounds *BoundsError
	assert.ErrorAs(t, err, &bounds)
}

func TestFindNeedleLargerThanRegion(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(0, 0, 20, 20)

	_, err := region.Find(inlinePattern(t, textured(40, 40, 1), "huge"))

	var matchErr *MatchError
	assert.ErrorAs(t, err, &matchErr)
}

func TestFindPropagatesCaptureError(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(150, 100, 100, 100) // extends past the fake screen

	_, err := region.Find(inlinePattern(t, textured(4, 4, 1), "any"))

	var capErr *CaptureError
	assert.ErrorAs(t, err, &capErr)
}

func TestExists(t *testing.T) {
	screen := textured(200, 150, 0)
	needle := textured(12, 9, 101)
	stamp(screen, needle, 60, 40)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)

	match, err := region.Exists(inlinePattern(t, needle, "button"))
	require.NoError(t, err)
	require.NotNil(t, match)

	absent, err := region.Exists(inlinePattern(t, checker(12, 9), "ghost"))
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestExistsIdempotent(t *testing.T) {
	screen := textured(200, 150, 0)
	needle := textured(12, 9, 101)
	stamp(screen, needle, 60, 40)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)
	pat := inlinePattern(t, needle, "button")

	first, err := region.Exists(pat)
	require.NoError(t, err)
	second, err := region.Exists(pat)
	require.NoError(t, err)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Rect(), second.Rect())
	assert.Equal(t, first.Score, second.Score)
}

func TestCachedFindNarrowsSearch(t *testing.T) {
	needle := textured(12, 9, 101)
	pat := inlinePattern(t, needle, "button")

	// Prime the cache with the needle at region-relative (40, 20).
	primeScreen := textured(200, 150, 0)
	stamp(primeScreen, needle, 60, 40)

	cap := &fakeCapturer{frame: primeScreen}
	session, _ := newTestSession(cap)
	region := session.Region(20, 20, 160, 120)

	primed, err := region.Find(pat)
	require.NoError(t, err)
	require.Equal(t, image.Point{X: 40, Y: 20}, image.Point{X: primed.X, Y: primed.Y})

	// Two copies now: a row-major-earlier decoy at (5, 5) and a drifted
	// copy at (42, 22), still inside the cached window.
	driftScreen := textured(200, 150, 0)
	stamp(driftScreen, needle, 25, 25) // region-relative (5, 5)
	stamp(driftScreen, needle, 62, 42) // region-relative (42, 22)
	cap.frame = driftScreen

	cached, err := region.Find(pat, Cached())
	require.NoError(t, err)
	assert.Equal(t, 42, cached.X, "cached find should hit the drifted copy near the cache entry")
	assert.Equal(t, 22, cached.Y)

	full, err := region.Find(pat)
	require.NoError(t, err)
	assert.Equal(t, 5, full.X, "full scan returns the first copy in row-major order")
	assert.Equal(t, 5, full.Y)
}

func TestCachedFindFallsBackToFullSearch(t *testing.T) {
	needle := textured(12, 9, 101)
	pat := inlinePattern(t, needle, "button")

	primeScreen := textured(200, 150, 0)
	stamp(primeScreen, needle, 60, 40)

	cap := &fakeCapturer{frame: primeScreen}
	session, _ := newTestSession(cap)
	region := session.Region(20, 20, 160, 120)

	_, err := region.Find(pat)
	require.NoError(t, err)

	// The needle moves far outside the cached window; a cached find must
	// not be worse than a full search.
	movedScreen := textured(200, 150, 0)
	stamp(movedScreen, needle, 120, 100) // region-relative (100, 80)
	cap.frame = movedScreen

	match, err := region.Find(pat, Cached())
	require.NoError(t, err)
	assert.Equal(t, 100, match.X)
	assert.Equal(t, 80, match.Y)
}

func TestCachedFindWithoutEntryScansFullRegion(t *testing.T) {
	screen := textured(200, 150, 0)
	needle := textured(12, 9, 101)
	stamp(screen, needle, 60, 40)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)

	match, err := region.Find(inlinePattern(t, needle, "button"), Cached())
	require.NoError(t, err)
	assert.Equal(t, 40, match.X)
	assert.Equal(t, 20, match.Y)
}

func TestCacheIsKeyedPerNeedle(t *testing.T) {
	needleA := textured(12, 9, 101)
	needleB := textured(12, 9, 55)

	screen := textured(200, 150, 0)
	stamp(screen, needleA, 60, 40)
	stamp(screen, needleB, 120, 100)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)

	_, err := region.Find(inlinePattern(t, needleA, "a"))
	require.NoError(t, err)

	// A cached find for a different needle must not reuse needle A's
	// entry: needle B sits far from A and would be missed by A's window.
	match, err := region.Find(inlinePattern(t, needleB, "b"), Cached())
	require.NoError(t, err)
	assert.Equal(t, 100, match.X)
	assert.Equal(t, 80, match.Y)
}

func TestFindAll(t *testing.T) {
	screen := textured(200, 150, 0)
	needle := checker(10, 8)
	stamp(screen, needle, 30, 30)
	stamp(screen, needle, 90, 40)
	stamp(screen, needle, 50, 100)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)

	matches, err := region.FindAll(inlinePattern(t, needle, "cell"), Threshold(0.98))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			assert.True(t, matches[i].Rect().Intersect(matches[j].Rect()).Empty(),
				"matches %d and %d overlap", i, j)
		}
	}
}

func TestFindAllEmpty(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(20, 20, 160, 120)

	matches, err := region.FindAll(inlinePattern(t, checker(10, 8), "cell"), Threshold(0.99))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWaitSucceedsWhenPatternAppears(t *testing.T) {
	needle := textured(12, 9, 101)
	blank := textured(200, 150, 0)
	withNeedle := textured(200, 150, 0)
	stamp(withNeedle, needle, 60, 40)

	appearAt := time.Now().Add(60 * time.Millisecond)
	cap := &fakeCapturer{frameFn: func() *image.RGBA {
		if time.Now().Before(appearAt) {
			return blank
		}
		return withNeedle
	}}

	session, _ := newTestSession(cap)
	region := session.Region(20, 20, 160, 120)

	start := time.Now()
	match, err := region.Wait(inlinePattern(t, needle, "button"), 2*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 40, match.X)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitTimesOut(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(20, 20, 160, 120)

	start := time.Now()
	_, err := region.Wait(inlinePattern(t, checker(12, 9), "ghost"), 100*time.Millisecond)
	elapsed := time.Since(start)

	var notFound *FindFailedError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 100*time.Millisecond, notFound.Timeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitPropagatesCaptureError(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(150, 100, 100, 100)

	_, err := region.Wait(inlinePattern(t, textured(4, 4, 1), "any"), time.Second)

	var capErr *CaptureError
	assert.ErrorAs(t, err, &capErr)
}

func TestWaitVanishSucceedsWhenPatternDisappears(t *testing.T) {
	needle := textured(12, 9, 101)
	blank := textured(200, 150, 0)
	withNeedle := textured(200, 150, 0)
	stamp(withNeedle, needle, 60, 40)

	vanishAt := time.Now().Add(60 * time.Millisecond)
	cap := &fakeCapturer{frameFn: func() *image.RGBA {
		if time.Now().Before(vanishAt) {
			return withNeedle
		}
		return blank
	}}

	session, _ := newTestSession(cap)
	region := session.Region(20, 20, 160, 120)

	start := time.Now()
	err := region.WaitVanish(inlinePattern(t, needle, "button"), 2*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitVanishTimesOut(t *testing.T) {
	needle := textured(12, 9, 101)
	screen := textured(200, 150, 0)
	stamp(screen, needle, 60, 40)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)

	start := time.Now()
	err := region.WaitVanish(inlinePattern(t, needle, "button"), 100*time.Millisecond)
	elapsed := time.Since(start)

	var vanish *VanishFailedError
	require.ErrorAs(t, err, &vanish)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestText(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)},
		WithOCR(fakeOCR{text: "WELCOME"}))
	region := session.Region(20, 20, 160, 120)

	text, err := region.Text()
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", text)
}

func TestTextZeroSizeRegion(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})
	region := session.Region(10, 10, 0, 5)

	_, err := region.Text()

	var bounds *BoundsError
	assert.ErrorAs(t, err, &bounds)
}

func TestShiftDropsCache(t *testing.T) {
	needle := textured(12, 9, 101)
	screen := textured(200, 150, 0)
	stamp(screen, needle, 60, 40)

	session, _ := newTestSession(&fakeCapturer{frame: screen})
	region := session.Region(20, 20, 160, 120)
	pat := inlinePattern(t, needle, "button")

	_, err := region.Find(pat)
	require.NoError(t, err)
	require.NotEmpty(t, region.cache)

	region.Shift(10, 10)
	assert.Equal(t, 10, region.X)
	assert.Equal(t, 10, region.Y)
	assert.Empty(t, region.cache)

	// The shifted region still finds the needle at its new relative spot.
	match, err := region.Find(pat, Cached())
	require.NoError(t, err)
	assert.Equal(t, 50, match.X)
	assert.Equal(t, 30, match.Y)
}

func TestFullScreenRegion(t *testing.T) {
	session, _ := newTestSession(&fakeCapturer{frame: textured(200, 150, 0)})

	region := session.FullScreen()
	assert.Equal(t, image.Rect(0, 0, 200, 150), region.Rect())
}

func TestRecorderReceivesEvents(t *testing.T) {
	screen := textured(200, 150, 0)
	needle := textured(12, 9, 101)
	stamp(screen, needle, 60, 40)

	var events []Event
	rec := recorderFunc(func(ev Event) { events = append(events, ev) })

	session, _ := newTestSession(&fakeCapturer{frame: screen}, WithRecorder(rec))
	region := session.Region(20, 20, 160, 120)

	match, err := region.Find(inlinePattern(t, needle, "button"))
	require.NoError(t, err)
	match.Click()

	require.Len(t, events, 2)
	assert.Equal(t, "find", events[0].Kind)
	assert.True(t, events[0].Found)
	assert.Equal(t, "click", events[1].Kind)
	assert.False(t, events[0].At.IsZero())
}

// recorderFunc adapts a function to the Recorder interface.
type recorderFunc func(Event)

func (f recorderFunc) Record(ev Event) { f(ev) }
