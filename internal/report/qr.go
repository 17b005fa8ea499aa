package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DigestToQR creates a QR code PNG encoding the provided hex digest.
func DigestToQR(digest string, size int) ([]byte, error) {
	normalized := sanitizeHex(digest)
	if normalized == "" {
		return nil, fmt.Errorf("digest is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(normalized, qrcode.Medium, size)
}

func sanitizeHex(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		}
	}
	return b.String()
}
