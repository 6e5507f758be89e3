// Package cv implements normalized cross-correlation template matching
// over RGBA pixel buffers.
package cv

import (
	"fmt"
	"image"
	"math"
)

// MatchResult is one located occurrence of a needle inside a haystack.
// Location is the top-left corner in the haystack's coordinate space.
type MatchResult struct {
	Found      bool
	Location   image.Point
	Confidence float64
}

// MatchConfig configures a matching pass.
type MatchConfig struct {
	Threshold    float64          // 0.0-1.0, higher = more strict
	SearchRegion *image.Rectangle // optional: limit the scan to a sub-rectangle
	MaxMatches   int              // FindTemplateAll only, 0 = unlimited
}

// DefaultMatchConfig returns recommended settings.
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		Threshold: 0.8,
	}
}

// MatchError reports a matching pass that could not be attempted,
// e.g. a needle larger than its haystack.
type MatchError struct {
	Reason string
}

func (e *MatchError) Error() string {
	return "match error: " + e.Reason
}

// BoundsError reports a rectangle that extends outside its parent buffer.
type BoundsError struct {
	Rect   image.Rectangle
	Bounds image.Rectangle
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("rectangle %v outside bounds %v", e.Rect, e.Bounds)
}

// FindTemplate scans haystack for the single best occurrence of needle.
// The score is zero-mean normalized cross-correlation over the RGB channels,
// mapped onto [0,1]. When several positions share the maximum score the
// first one in row-major scan order wins.
func FindTemplate(haystack, needle *image.RGBA, config *MatchConfig) (*MatchResult, error) {
	if config == nil {
		config = DefaultMatchConfig()
	}

	scan, err := scanBounds(haystack, needle, config.SearchRegion)
	if err != nil {
		return nil, err
	}

	np := precomputeNeedle(needle)

	best := MatchResult{Location: scan.Min, Confidence: -1}
	for y := scan.Min.Y; y <= scan.Max.Y; y++ {
		for x := scan.Min.X; x <= scan.Max.X; x++ {
			score := scoreAt(haystack, np, x, y)
			if score > best.Confidence {
				best.Confidence = score
				best.Location = image.Point{X: x, Y: y}
			}
		}
	}
	best.Found = best.Confidence >= config.Threshold

	return &best, nil
}

// FindTemplateAll returns every occurrence of needle scoring at or above
// config.Threshold, ordered by descending confidence. After each accepted
// match the surrounding needle-sized neighborhood of the score map is
// suppressed so overlapping windows around one true occurrence are reported
// once. The loop terminates because every accepted match suppresses at least
// its own cell; the number of accepted matches is bounded by
// haystackArea/needleArea since accepted exclusion zones are disjoint.
func FindTemplateAll(haystack, needle *image.RGBA, config *MatchConfig) ([]MatchResult, error) {
	if config == nil {
		config = DefaultMatchConfig()
	}

	scan, err := scanBounds(haystack, needle, config.SearchRegion)
	if err != nil {
		return nil, err
	}

	np := precomputeNeedle(needle)

	// Score every aligned position once, then run greedy non-max
	// suppression over the map.
	cols := scan.Max.X - scan.Min.X + 1
	rows := scan.Max.Y - scan.Min.Y + 1
	scores := make([]float64, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			scores[y*cols+x] = scoreAt(haystack, np, scan.Min.X+x, scan.Min.Y+y)
		}
	}

	var results []MatchResult
	for {
		bestIdx := -1
		bestScore := -1.0
		for i, s := range scores {
			if s > bestScore {
				bestScore = s
				bestIdx = i
			}
		}
		if bestIdx < 0 || bestScore < config.Threshold {
			break
		}

		bx := bestIdx % cols
		by := bestIdx / cols
		results = append(results, MatchResult{
			Found:      true,
			Location:   image.Point{X: scan.Min.X + bx, Y: scan.Min.Y + by},
			Confidence: bestScore,
		})
		if config.MaxMatches > 0 && len(results) >= config.MaxMatches {
			break
		}

		// Mask out the needle-sized exclusion zone around the accepted
		// match so returned rectangles never overlap.
		for y := maxInt(0, by-np.h+1); y <= minInt(rows-1, by+np.h-1); y++ {
			for x := maxInt(0, bx-np.w+1); x <= minInt(cols-1, bx+np.w-1); x++ {
				scores[y*cols+x] = -1
			}
		}
	}

	return results, nil
}

// Crop returns a copy of the sub-rectangle rect of img. The rectangle must
// lie fully inside img's bounds.
func Crop(img *image.RGBA, rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() || !rect.In(img.Bounds()) {
		return nil, &BoundsError{Rect: rect, Bounds: img.Bounds()}
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		srcOff := (rect.Min.Y+y-img.Rect.Min.Y)*img.Stride + (rect.Min.X-img.Rect.Min.X)*4
		dstOff := y * out.Stride
		copy(out.Pix[dstOff:dstOff+rect.Dx()*4], img.Pix[srcOff:srcOff+rect.Dx()*4])
	}
	return out, nil
}

// scanBounds validates the images and returns the inclusive range of valid
// top-left needle positions within the (possibly narrowed) haystack.
func scanBounds(haystack, needle *image.RGBA, search *image.Rectangle) (image.Rectangle, error) {
	if haystack == nil || needle == nil {
		return image.Rectangle{}, &MatchError{Reason: "nil image"}
	}

	hb := haystack.Bounds()
	nb := needle.Bounds()
	if nb.Dx() <= 0 || nb.Dy() <= 0 || hb.Dx() <= 0 || hb.Dy() <= 0 {
		return image.Rectangle{}, &MatchError{Reason: "empty image"}
	}
	if nb.Dx() > hb.Dx() || nb.Dy() > hb.Dy() {
		return image.Rectangle{}, &MatchError{
			Reason: fmt.Sprintf("needle %dx%d larger than haystack %dx%d",
				nb.Dx(), nb.Dy(), hb.Dx(), hb.Dy()),
		}
	}

	area := hb
	if search != nil {
		area = search.Intersect(hb)
		if area.Dx() < nb.Dx() || area.Dy() < nb.Dy() {
			return image.Rectangle{}, &MatchError{
				Reason: fmt.Sprintf("needle %dx%d larger than search region %dx%d",
					nb.Dx(), nb.Dy(), area.Dx(), area.Dy()),
			}
		}
	}

	return image.Rectangle{
		Min: area.Min,
		Max: image.Point{X: area.Max.X - nb.Dx(), Y: area.Max.Y - nb.Dy()},
	}, nil
}

// needlePrecomp caches the needle's RGB samples and summary statistics so
// the per-position correlation only walks the haystack window.
type needlePrecomp struct {
	vals  []float64 // w*h*3 RGB samples in row-major order
	w, h  int
	sum   float64
	sumSq float64
}

func precomputeNeedle(needle *image.RGBA) *needlePrecomp {
	nb := needle.Bounds()
	np := &needlePrecomp{
		vals: make([]float64, 0, nb.Dx()*nb.Dy()*3),
		w:    nb.Dx(),
		h:    nb.Dy(),
	}
	for y := nb.Min.Y; y < nb.Max.Y; y++ {
		for x := nb.Min.X; x < nb.Max.X; x++ {
			idx := (y-needle.Rect.Min.Y)*needle.Stride + (x-needle.Rect.Min.X)*4
			for c := 0; c < 3; c++ {
				v := float64(needle.Pix[idx+c])
				np.vals = append(np.vals, v)
				np.sum += v
				np.sumSq += v * v
			}
		}
	}
	return np
}

// scoreAt computes the normalized cross-correlation between the needle and
// the haystack window anchored at (x, y), mapped from [-1,1] onto [0,1].
func scoreAt(haystack *image.RGBA, np *needlePrecomp, x, y int) float64 {
	var sumH, sumHH, sumHN float64
	n := float64(len(np.vals))

	i := 0
	for ny := 0; ny < np.h; ny++ {
		row := (y+ny-haystack.Rect.Min.Y)*haystack.Stride + (x-haystack.Rect.Min.X)*4
		for nx := 0; nx < np.w; nx++ {
			idx := row + nx*4
			for c := 0; c < 3; c++ {
				h := float64(haystack.Pix[idx+c])
				sumH += h
				sumHH += h * h
				sumHN += h * np.vals[i]
				i++
			}
		}
	}

	numerator := sumHN - (sumH * np.sum / n)
	denomH := math.Sqrt(sumHH - (sumH * sumH / n))
	denomN := math.Sqrt(np.sumSq - (np.sum * np.sum / n))
	if denomH < 1e-9 || denomN < 1e-9 {
		// Flat window against flat needle: exact when the means agree.
		if denomH < 1e-9 && denomN < 1e-9 && math.Abs(sumH-np.sum) < 1e-6 {
			return 1
		}
		return 0
	}

	correlation := numerator / (denomH * denomN)
	return (correlation + 1) / 2
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
