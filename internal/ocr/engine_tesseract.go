//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

const compiledBackendType = TypeTesseract

// tesseractEngine creates one gosseract client per call. Clients wrap a
// TessBaseAPI and are not safe for concurrent use.
type tesseractEngine struct {
	languages []string
}

func newCompiledEngine(languages []string) Engine {
	return &tesseractEngine{languages: slices.Clone(languages)}
}

func (e *tesseractEngine) Type() string { return TypeTesseract }

func (e *tesseractEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	text, err := e.recognizeWith(data, e.languages)
	if err == nil {
		return text, nil
	}
	if len(e.languages) == 1 && e.languages[0] == FallbackLanguage {
		return "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	slog.Debug("[DEBUG-OCR] tesseract init failed, retrying with fallback language",
		"languages", strings.Join(e.languages, "+"), "fallback", FallbackLanguage, "error", err)

	text, fallbackErr := e.recognizeWith(data, []string{FallbackLanguage})
	if fallbackErr != nil {
		return "", fmt.Errorf("could not initialize tesseract (check tessdata): %w", fallbackErr)
	}
	return text, nil
}

func (e *tesseractEngine) recognizeWith(data []byte, languages []string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return "", fmt.Errorf("set tesseract languages %v: %w", languages, err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("load image into tesseract: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w", strings.Join(languages, "+"), err)
	}
	return text, nil
}

func (e *tesseractEngine) Close() error { return nil }
