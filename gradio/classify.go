package gradio

import "strings"

// Category is the result of classifying remote error text.
type Category int

const (
	CategoryOther Category = iota
	CategoryResourceExhausted
)

// resourceKeywords are matched case-insensitively anywhere in the text.
// "load" also hits words like "download"; that over-match is accepted.
var resourceKeywords = []string{
	"cuda",
	"gpu",
	"quota",
	"capacity",
	"load",
	"queue full",
	"too many requests",
	"rate limit",
}

// Classify decides whether remote error text signals resource exhaustion.
func Classify(text string) Category {
	lower := strings.ToLower(text)
	for _, kw := range resourceKeywords {
		if strings.Contains(lower, kw) {
			return CategoryResourceExhausted
		}
	}
	return CategoryOther
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
