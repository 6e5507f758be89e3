// Package screen provides the default OS-level collaborators: display
// capture, pointer control and OCR.
package screen

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// CaptureError reports a failed screen capture.
type CaptureError struct {
	Rect image.Rectangle
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %v failed: %v", e.Rect, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Capturer grabs rectangular screen snapshots from one display.
type Capturer struct {
	DisplayIndex int
}

// NewCapturer returns a Capturer for the main display.
func NewCapturer() *Capturer {
	return &Capturer{DisplayIndex: 0}
}

// Capture returns a snapshot of rect in screen coordinates. The returned
// buffer's dimensions exactly match rect.
func (c *Capturer) Capture(rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() {
		return nil, &CaptureError{Rect: rect, Err: fmt.Errorf("empty rectangle")}
	}

	bounds := screenshot.GetDisplayBounds(c.DisplayIndex)
	if !rect.In(bounds) {
		return nil, &CaptureError{
			Rect: rect,
			Err:  fmt.Errorf("outside display %d bounds %v", c.DisplayIndex, bounds),
		}
	}

	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, &CaptureError{Rect: rect, Err: err}
	}
	return img, nil
}

// Bounds returns the display's rectangle in screen coordinates.
func (c *Capturer) Bounds() image.Rectangle {
	return screenshot.GetDisplayBounds(c.DisplayIndex)
}
