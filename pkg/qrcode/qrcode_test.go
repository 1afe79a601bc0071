package qrcode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateQRCode(t *testing.T) {
	s := NewQRService("https://kiosk.example.com/summer-gala/")
	assert.Equal(t, "https://kiosk.example.com/summer-gala/registration", s.URL("/registration"))

	png, err := s.GenerateQRCode("registration", 128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestGenerateQRCodeWithoutBase(t *testing.T) {
	_, err := NewQRService("").GenerateQRCode("registration", 0)
	assert.Error(t, err)
}
