package utils

import (
	"github.com/skip2/go-qrcode"
)

// GenerateQRCode encodes content as a square PNG of the given size.
func GenerateQRCode(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, size)
}
