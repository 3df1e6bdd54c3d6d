// Package photo keeps the photo attached to a draft in the blob store and
// encodes it for the submission body.
package photo

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fieldmission/internal/blob"
)

// MaxBytes bounds an attached photo.
const MaxBytes = 10 << 20

// ErrNotImage is returned when the content is not an image.
var ErrNotImage = errors.New("photo: content is not an image")

// ErrTooLarge is returned when the content exceeds MaxBytes.
var ErrTooLarge = errors.New("photo: too large")

// Key returns the blob key of a draft's photo.
func Key(draftID string) string { return "photos/" + draftID }

// Attach stores r as the photo of draftID, replacing any previous one, and
// returns its data URI. An empty contentType is sniffed from the content.
func Attach(ctx context.Context, store blob.Store, draftID string, r io.Reader, contentType string) (string, error) {
	if strings.TrimSpace(draftID) == "" {
		return "", errors.New("photo: empty draft id")
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if len(data) > MaxBytes {
		return "", ErrTooLarge
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	key := Key(draftID)
	if _, err := store.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("replace photo %s: %w", key, err)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"draft": draftID},
	}); err != nil {
		return "", fmt.Errorf("store photo %s: %w", key, err)
	}
	return DataURI(contentType, data), nil
}

// Load returns the data URI of the stored photo of draftID.
func Load(ctx context.Context, store blob.Store, draftID string) (string, error) {
	info, rc, err := store.Get(ctx, Key(draftID))
	if err != nil {
		return "", fmt.Errorf("load photo: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	return DataURI(info.ContentType, data), nil
}

// Release deletes the photo of draftID. A missing photo is not an error.
func Release(ctx context.Context, store blob.Store, draftID string) error {
	if _, err := store.Delete(ctx, Key(draftID)); err != nil {
		return fmt.Errorf("release photo %s: %w", Key(draftID), err)
	}
	return nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
