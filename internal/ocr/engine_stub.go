//go:build !tesseract && !(darwin && cgo)

package ocr

import (
	"context"
	"image"
)

const compiledBackendType = TypeNone

// NotConfiguredMessage is returned as recognition text when no engine is
// compiled in.
const NotConfiguredMessage = "OCR not configured. Rebuild with -tags tesseract to enable Tesseract."

type stubEngine struct{}

func newCompiledEngine([]string) Engine { return stubEngine{} }

func (stubEngine) Type() string { return TypeNone }

func (stubEngine) Recognize(context.Context, image.Image) (string, error) {
	return NotConfiguredMessage, nil
}

func (stubEngine) Close() error { return nil }
