// Package imagecodec converts captured frames between data URLs and raw bytes.
package imagecodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrEmpty     = errors.New("imagecodec: empty image")
	ErrMalformed = errors.New("imagecodec: malformed data url")
)

// Image is a decoded still image.
type Image struct {
	Data        []byte
	ContentType string
}

// Filename returns a name with an extension matching the content type.
func (img Image) Filename(base string) string {
	switch img.ContentType {
	case "image/png":
		return base + ".png"
	case "image/webp":
		return base + ".webp"
	default:
		return base + ".jpg"
	}
}

// EncodeDataURL renders raw image bytes as "data:<type>;base64,<payload>".
// An empty contentType is sniffed from the bytes.
func EncodeDataURL(data []byte, contentType string) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL decodes a base64 data URL into raw bytes. A bare base64
// payload without the "data:" prefix is accepted and treated as JPEG.
func DecodeDataURL(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, ErrEmpty
	}

	contentType := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, body, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return Image{}, ErrMalformed
		}
		params := strings.Split(header, ";")
		if !strings.EqualFold(params[len(params)-1], "base64") {
			return Image{}, fmt.Errorf("%w: payload is not base64", ErrMalformed)
		}
		if params[0] != "" {
			contentType = strings.ToLower(params[0])
		}
		payload = body
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	return Image{Data: data, ContentType: contentType}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
