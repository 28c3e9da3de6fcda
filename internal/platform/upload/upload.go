package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"triage-assistant/internal/domain"
)

// MaxSize caps multipart bodies and decoded images.
const MaxSize = 10 << 20

// MaxRequestSize caps whole request bodies. Base64 inflates an image by a
// third and multipart adds framing, so it sits above MaxSize.
const MaxRequestSize = 2 * MaxSize

var ErrNotImage = errors.New("attachment is not an image")

// LimitBody makes reads past MaxRequestSize fail with *http.MaxBytesError.
func LimitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestSize)
}

// IsTooLarge reports whether err came from a body over the limit.
func IsTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// IsMultipart reports whether the request carries a multipart form.
func IsMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// ImageFromForm reads an optional image from a parsed multipart form.
// A missing field is not an error.
func ImageFromForm(r *http.Request, field string) (*domain.Attachment, error) {
	file, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, MaxSize+1)); err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	if buf.Len() > MaxSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", field, MaxSize)
	}

	mimeType := hdr.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(buf.Bytes())
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrNotImage
	}
	return &domain.Attachment{MIMEType: mimeType, Data: buf.Bytes()}, nil
}

// ImageFromBase64 decodes an inline image. Data URLs ("data:image/png;base64,...")
// are accepted too. Empty input means no image.
func ImageFromBase64(data, mimeType string) (*domain.Attachment, error) {
	if data == "" {
		return nil, nil
	}
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data url")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		data = payload
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if len(raw) > MaxSize {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxSize)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrNotImage
	}
	return &domain.Attachment{MIMEType: mimeType, Data: raw}, nil
}
