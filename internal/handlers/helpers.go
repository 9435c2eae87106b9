package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// generateShareToken mints a 64-character hex token from 32 bytes of
// crypto/rand entropy. Tokens carry no information about the file or owner.
func generateShareToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// decodeUploadFilename repairs multipart filenames that browsers submitted as
// UTF-8 but the transport decoded as latin-1 (every rune fits a byte and the
// byte string parses as UTF-8). Anything else passes through untouched.
func decodeUploadFilename(name string) string {
	buf := make([]byte, 0, len(name))
	for _, r := range name {
		if r > 0xFF {
			return name
		}
		buf = append(buf, byte(r))
	}
	if utf8.Valid(buf) {
		return string(buf)
	}
	return name
}
