package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const cacheCleanupInterval = time.Minute

// Options configures a Dispatcher.
type Options struct {
	// Languages is passed to engines that support language selection.
	Languages []string
	// CacheTTL keeps results for identical images. 0 disables the cache.
	CacheTTL time.Duration
}

// Dispatcher hands images to one Engine and optionally caches results by
// pixel content.
type Dispatcher struct {
	engine Engine
	cache  *cache.Cache
}

// New returns a dispatcher over the engine compiled into this binary.
func New(opts Options) *Dispatcher {
	return NewWithEngine(NewEngine(opts.Languages), opts)
}

// NewWithEngine returns a dispatcher over engine.
func NewWithEngine(engine Engine, opts Options) *Dispatcher {
	d := &Dispatcher{engine: engine}
	if opts.CacheTTL > 0 {
		d.cache = cache.New(opts.CacheTTL, cacheCleanupInterval)
	}
	slog.Debug("[DEBUG-OCR] dispatcher ready", "backend", engine.Type(), "cacheTTL", opts.CacheTTL)
	return d
}

// BackendType returns the engine type of this dispatcher.
func (d *Dispatcher) BackendType() string { return d.engine.Type() }

// Recognize returns the trimmed text found in img. A nil or empty image
// yields "" without invoking the engine.
func (d *Dispatcher) Recognize(ctx context.Context, img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var key string
	if d.cache != nil {
		key = d.engine.Type() + ":" + pixelDigest(img)
		if text, ok := d.cache.Get(key); ok {
			slog.Debug("[DEBUG-OCR] cache hit", "key", key[:min(len(key), 24)])
			return text.(string), nil
		}
	}

	start := time.Now()
	text, err := d.engine.Recognize(ctx, img)
	if err != nil {
		slog.Warn("[DEBUG-OCR] recognition failed", "backend", d.engine.Type(), "error", err)
		return "", fmt.Errorf("%s recognition: %w", strings.ToLower(d.engine.Type()), err)
	}
	text = strings.TrimSpace(text)
	slog.Debug("[DEBUG-OCR] recognized image",
		"backend", d.engine.Type(),
		"bounds", img.Bounds().String(),
		"chars", len(text),
		"elapsed", time.Since(start))

	if d.cache != nil {
		d.cache.Set(key, text, cache.DefaultExpiration)
	}
	return text, nil
}

// RecognizeFile decodes a PNG or JPEG file and recognizes it.
func (d *Dispatcher) RecognizeFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image %s: %w", path, err)
	}
	slog.Debug("[DEBUG-OCR] decoded image file", "path", path, "format", format)
	return d.Recognize(ctx, img)
}

// Close releases the engine.
func (d *Dispatcher) Close() error {
	if d.cache != nil {
		d.cache.Flush()
	}
	return d.engine.Close()
}

// hashRows writes the visible bytes of each row in b. Pix may belong to a
// larger parent image and rows may be padded past the visible width.
func hashRows(h io.Writer, pix []byte, b image.Rectangle, bpp int, offset func(x, y int) int) {
	rowLen := b.Dx() * bpp
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := offset(b.Min.X, y)
		h.Write(pix[i : i+rowLen])
	}
}

// pixelDigest hashes the bounds and RGBA values of img.
func pixelDigest(img image.Image) string {
	h := sha256.New()
	fmt.Fprintf(h, "%T", img)
	b := img.Bounds()
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(int32(b.Min.X)))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(int32(b.Min.Y)))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(int32(b.Dx())))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(int32(b.Dy())))
	h.Write(hdr[:])

	switch src := img.(type) {
	case *image.RGBA:
		hashRows(h, src.Pix, b, 4, src.PixOffset)
	case *image.NRGBA:
		hashRows(h, src.Pix, b, 4, src.PixOffset)
	case *image.Gray:
		hashRows(h, src.Pix, b, 1, src.PixOffset)
	default:
		var px [8]byte
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, a := img.At(x, y).RGBA()
				binary.LittleEndian.PutUint16(px[0:], uint16(r))
				binary.LittleEndian.PutUint16(px[2:], uint16(g))
				binary.LittleEndian.PutUint16(px[4:], uint16(bl))
				binary.LittleEndian.PutUint16(px[6:], uint16(a))
				h.Write(px[:])
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
