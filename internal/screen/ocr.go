package screen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCR recognizes text in pixel buffers via Tesseract.
type OCR struct {
	Language string
}

// NewOCR returns an OCR client for the given language ("" = Tesseract
// default).
func NewOCR(language string) *OCR {
	return &OCR{Language: language}
}

// Recognize returns the text found in img, best effort. An empty string
// means no text was recognized.
func (o *OCR) Recognize(img *image.RGBA) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if o.Language != "" {
		if err := client.SetLanguage(o.Language); err != nil {
			return "", fmt.Errorf("set OCR language %q: %w", o.Language, err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode OCR input: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set OCR input: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
