package qrcode

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// QRService renders PNG QR codes for links under one base URL, e.g. the
// event registration page or an album's payment page.
type QRService struct {
	baseURL string
}

func NewQRService(baseURL string) *QRService {
	return &QRService{
		baseURL: baseURL,
	}
}

// URL joins path onto the base URL.
func (s *QRService) URL(path string) string {
	if path == "" {
		return s.baseURL
	}
	return strings.TrimRight(s.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// GenerateQRCode encodes the link for path as a PNG of size pixels.
func (s *QRService) GenerateQRCode(path string, size int) ([]byte, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("qr base URL is not configured")
	}
	if size <= 0 {
		size = DefaultSize
	}

	png, err := qrcode.Encode(s.URL(path), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code PNG: %w", err)
	}

	return png, nil
}
