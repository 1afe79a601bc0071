package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	AlbumCodeLength = 8
	albumCharset    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateAlbumCode returns a random code of uppercase letters and digits.
func GenerateAlbumCode() (string, error) {
	b := make([]byte, AlbumCodeLength)
	max := big.NewInt(int64(len(albumCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = albumCharset[n.Int64()]
	}
	return string(b), nil
}

// NormalizeAlbumCode accepts codes typed in lower case or with spaces.
func NormalizeAlbumCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsAlbumCode(code string) bool {
	if len(code) != AlbumCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(albumCharset, r) {
			return false
		}
	}
	return true
}
