package spotter

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"jordanella.com/spotter-go/internal/cv"
	"jordanella.com/spotter-go/pkg/patterns"
)

// Match is one located occurrence of a pattern within a Region. The
// rectangle is relative to the owning Region's origin and always lies
// within its bounds. Matches are immutable.
type Match struct {
	Pattern string
	X, Y    int
	W, H    int
	Score   float64

	region *Region
}

func newMatch(r *Region, pat *patterns.Pattern, res *cv.MatchResult) *Match {
	return &Match{
		Pattern: pat.Name,
		X:       res.Location.X,
		Y:       res.Location.Y,
		W:       pat.Width(),
		H:       pat.Height(),
		Score:   res.Confidence,
		region:  r,
	}
}

func (m *Match) String() string {
	return fmt.Sprintf("[%s: X:%d, Y:%d, W:%d, H:%d, %.5f]", m.Pattern, m.X, m.Y, m.W, m.H, m.Score)
}

// Rect returns the match rectangle relative to the owning region.
func (m *Match) Rect() image.Rectangle {
	return image.Rect(m.X, m.Y, m.X+m.W, m.Y+m.H)
}

// ScreenRect returns the match rectangle in absolute screen coordinates.
func (m *Match) ScreenRect() image.Rectangle {
	return m.Rect().Add(image.Point{X: m.region.X, Y: m.region.Y})
}

// Click clicks a random point strictly inside the match rectangle. The
// point excludes a 1-pixel border to avoid edge artifacts. Moves the real
// pointer; neither idempotent nor reversible.
func (m *Match) Click() {
	x, y := m.randomPoint()
	m.region.session.pointer.Click(x, y)
	if hook := m.region.session.clickHook; hook != nil {
		hook(x, y)
	}
	m.region.session.record(Event{
		Kind: "click", Pattern: m.Pattern, Region: m.region.String(), Found: true,
	})
}

// Hover moves the pointer to a random point strictly inside the match
// rectangle.
func (m *Match) Hover() {
	x, y := m.randomPoint()
	m.region.session.pointer.Move(x, y)
	if hook := m.region.session.hoverHook; hook != nil {
		hook(x, y)
	}
	m.region.session.record(Event{
		Kind: "hover", Pattern: m.Pattern, Region: m.region.String(), Found: true,
	})
}

// randomPoint draws a uniform point inside the rectangle excluding its
// 1-pixel border, in absolute screen coordinates. Rectangles too small to
// have an interior use their center.
func (m *Match) randomPoint() (int, int) {
	rng := m.region.session.rng

	px := m.W / 2
	if m.W > 2 {
		px = 1 + rng.Intn(m.W-2)
	}
	py := m.H / 2
	if m.H > 2 {
		py = 1 + rng.Intn(m.H-2)
	}

	return m.region.X + m.X + px, m.region.Y + m.Y + py
}

// Screenshot captures the match rectangle and writes it to path as PNG.
func (m *Match) Screenshot(path string) error {
	frame, err := m.region.capture()
	if err != nil {
		return err
	}

	sub, err := cv.Crop(frame, m.Rect())
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	defer f.Close()

	if err := png.Encode(f, sub); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}
