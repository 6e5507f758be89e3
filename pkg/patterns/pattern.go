// Package patterns loads and caches the reference images searched for on
// screen.
package patterns

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	"image/png"
	"os"
)

// LoadError reports an unreadable or malformed pattern source.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load pattern %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Pattern is an immutable needle image with a stable identity key. The key
// scopes per-region match cache entries: file patterns are keyed by path,
// in-memory patterns by content hash.
type Pattern struct {
	Name string
	Path string
	key  string
	img  *image.RGBA
}

// Load reads and decodes a pattern image from disk.
func Load(path string) (*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}

	return &Pattern{
		Name: path,
		Path: path,
		key:  path,
		img:  toRGBA(img),
	}, nil
}

// FromBytes decodes a pattern from an in-memory encoded image.
func FromBytes(name string, data []byte) (*Pattern, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &LoadError{Source: name, Err: err}
	}

	sum := sha256.Sum256(data)
	return &Pattern{
		Name: name,
		key:  "sha256:" + hex.EncodeToString(sum[:]),
		img:  toRGBA(img),
	}, nil
}

// FromImage wraps an already-decoded image as a pattern.
func FromImage(name string, img image.Image) *Pattern {
	rgba := toRGBA(img)
	sum := sha256.Sum256(rgba.Pix)
	return &Pattern{
		Name: name,
		key:  "sha256:" + hex.EncodeToString(sum[:]),
		img:  rgba,
	}
}

// Key returns the pattern's identity key.
func (p *Pattern) Key() string { return p.key }

// Image returns the decoded pixel buffer.
func (p *Pattern) Image() *image.RGBA { return p.img }

// Width returns the pattern width in pixels.
func (p *Pattern) Width() int { return p.img.Bounds().Dx() }

// Height returns the pattern height in pixels.
func (p *Pattern) Height() int { return p.img.Bounds().Dy() }

func (p *Pattern) String() string {
	return fmt.Sprintf("[%s %dx%d]", p.Name, p.Width(), p.Height())
}

// toRGBA converts any decoded image to RGBA, copying even when the source
// already is one so patterns never alias caller-owned buffers.
func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return rgba
}

// EncodePNG writes the pattern's pixels as PNG, mainly for debugging
// captured fixtures.
func (p *Pattern) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.img); err != nil {
		return nil, fmt.Errorf("encode pattern %s: %w", p.Name, err)
	}
	return buf.Bytes(), nil
}
