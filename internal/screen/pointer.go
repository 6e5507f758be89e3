package screen

import (
	"github.com/go-vgo/robotgo"
)

// Pointer drives the real mouse through robotgo.
type Pointer struct{}

// NewPointer returns the default pointer controller.
func NewPointer() *Pointer {
	return &Pointer{}
}

// Move positions the pointer at absolute screen coordinates.
func (p *Pointer) Move(x, y int) {
	robotgo.MoveMouse(x, y)
}

// Click moves the pointer and issues a left click.
func (p *Pointer) Click(x, y int) {
	robotgo.MoveMouse(x, y)
	robotgo.Click("left")
}

// Size returns the primary screen dimensions.
func Size() (width, height int) {
	return robotgo.GetScreenSize()
}
