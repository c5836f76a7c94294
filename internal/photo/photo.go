// Package photo prepares requisition photos: compression of picked images
// into small inline JPEGs, and resolution of remote-only photos into data
// URLs through the API.
package photo

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/roach88/reqsync/internal/model"
)

const (
	// MaxSide bounds both dimensions of a compressed photo.
	MaxSide = 800
	// Quality is the JPEG quality of a compressed photo.
	Quality = 40
	// MaxInputBytes caps how much of a picked file is read.
	MaxInputBytes = 20 << 20

	jpegPrefix = "data:image/jpeg;base64,"
)

// ErrTooLarge is returned when the input exceeds MaxInputBytes.
var ErrTooLarge = errors.New("image exceeds size limit")

// Compress decodes any image imaging understands, fits it within
// MaxSide x MaxSide keeping the aspect ratio, and returns a JPEG data URL.
// Smaller images are re-encoded without scaling.
func Compress(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxInputBytes {
		return "", ErrTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	fitted := imaging.Fit(img, MaxSide, MaxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return jpegPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Payload splits a base64 image data URL into its media type and the raw
// encoded file bytes.
func Payload(dataURL string) (string, []byte, error) {
	head, payload, ok := strings.Cut(dataURL, ";base64,")
	if !ok || !strings.HasPrefix(head, "data:image/") {
		return "", nil, fmt.Errorf("not an image data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return strings.TrimPrefix(head, "data:"), raw, nil
}

// DecodeDataURL parses a base64 data URL back into an image.
func DecodeDataURL(dataURL string) (image.Image, error) {
	_, raw, err := Payload(dataURL)
	if err != nil {
		return nil, err
	}
	return imaging.Decode(bytes.NewReader(raw))
}

// Extension returns the file extension for an image media type.
func Extension(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// Fetcher downloads a remote photo as a data URL.
type Fetcher interface {
	FetchImage(ctx context.Context, photoURL string) (string, error)
}

// Resolver fills in inline images for photos that only have a remote URL.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default.
func NewResolver(f Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: f, logger: logger}
}

// Resolve returns a copy of r whose downloadable photos carry a data URL.
// A photo that cannot be fetched keeps its URL. The count of photos resolved
// is returned alongside.
func (res *Resolver) Resolve(ctx context.Context, r model.Requisition) (model.Requisition, int) {
	if len(r.Photos) == 0 {
		return r, 0
	}
	photos := make([]model.Photo, len(r.Photos))
	copy(photos, r.Photos)

	resolved := 0
	for i, p := range photos {
		if !p.NeedsDownload() {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		dataURL, err := res.fetcher.FetchImage(ctx, p.URL)
		if err != nil {
			res.logger.Warn("photo download failed",
				"requisition", r.RequisitionNumber,
				"photo", i,
				"error", err,
			)
			continue
		}
		photos[i].DataURL = dataURL
		resolved++
	}
	r.Photos = photos
	return r, resolved
}
