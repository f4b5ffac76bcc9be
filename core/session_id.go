package core

import (
	"crypto/rand"
	"fmt"
)

// SessionHashLength is the length of the per-job correlation token sent to
// the remote queue as session_hash.
const SessionHashLength = 26

const sessionHashAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSessionHash returns a fresh random correlation token of
// SessionHashLength characters over [a-z0-9].
// Uses crypto/rand; rejection sampling keeps the distribution uniform.
func GenerateSessionHash() (string, error) {
	const limit = 256 - (256 % len(sessionHashAlphabet))

	out := make([]byte, 0, SessionHashLength)
	buf := make([]byte, SessionHashLength*2)
	for len(out) < SessionHashLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate session hash: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, sessionHashAlphabet[int(b)%len(sessionHashAlphabet)])
			if len(out) == SessionHashLength {
				break
			}
		}
	}
	return string(out), nil
}
