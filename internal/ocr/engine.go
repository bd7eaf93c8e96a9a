// Package ocr routes images to the text-recognition engine selected at
// build time.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
)

// Backend type names reported by BackendType.
const (
	TypeTesseract = "Tesseract"
	TypeNative    = "Native"
	TypeNone      = "None"
)

// DefaultLanguages is the Tesseract language set tried first.
var DefaultLanguages = []string{"chi_sim", "eng"}

// FallbackLanguage is used when the default language data is missing.
const FallbackLanguage = "eng"

// Engine is one text-recognition implementation.
type Engine interface {
	// Type returns TypeTesseract, TypeNative or TypeNone.
	Type() string
	Recognize(ctx context.Context, img image.Image) (string, error)
	Close() error
}

// BackendType returns the engine type compiled into this binary.
func BackendType() string { return compiledBackendType }

// NewEngine returns the engine compiled into this binary.
func NewEngine(languages []string) Engine {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	return newCompiledEngine(languages)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image as png: %w", err)
	}
	return buf.Bytes(), nil
}
