package family

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const shareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var shareCodePattern = regexp.MustCompile(`^TREE-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// NewShareCode returns a random TREE-XXXX-XXXX code.
func NewShareCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i, b := range buf {
		// Slight modulo bias; codes identify, they do not authenticate.
		buf[i] = shareCodeAlphabet[int(b)%len(shareCodeAlphabet)]
	}
	return "TREE-" + string(buf[:4]) + "-" + string(buf[4:]), nil
}

// NormalizeShareCode trims and upper-cases a user-supplied code.
func NormalizeShareCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidShareCode reports whether code (already normalized) is well formed.
func IsValidShareCode(code string) bool {
	return shareCodePattern.MatchString(code)
}
