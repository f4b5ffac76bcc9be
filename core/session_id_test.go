package core

import (
	"strings"
	"testing"
)

func TestGenerateSessionHash_Format(t *testing.T) {
	hash, err := GenerateSessionHash()
	if err != nil {
		t.Fatalf("GenerateSessionHash() returned error: %v", err)
	}

	if len(hash) != SessionHashLength {
		t.Errorf("len = %d, want %d", len(hash), SessionHashLength)
	}
	for _, r := range hash {
		if !strings.ContainsRune(sessionHashAlphabet, r) {
			t.Errorf("unexpected character %q in %q", r, hash)
		}
	}
}

func TestGenerateSessionHash_Unique(t *testing.T) {
	seen := make(map[string]bool)
	const iterations = 200

	for i := 0; i < iterations; i++ {
		hash, err := GenerateSessionHash()
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if seen[hash] {
			t.Fatalf("duplicate session hash: %s", hash)
		}
		seen[hash] = true
	}
}
