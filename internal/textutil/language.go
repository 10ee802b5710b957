package textutil

import "strings"

// DefaultMinEnglishRatio is the share of purely alphabetic ASCII words a
// text needs before it is treated as English.
const DefaultMinEnglishRatio = 0.7

// EnglishRatio returns the fraction of whitespace-separated words in text
// that consist only of ASCII letters. Text without words returns 0.
func EnglishRatio(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	english := 0
	for _, w := range words {
		if isASCIIWord(w) {
			english++
		}
	}
	return float64(english) / float64(len(words))
}

// IsEnglish reports whether text meets minRatio. Empty text is never English.
func IsEnglish(text string, minRatio float64) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return EnglishRatio(text) >= minRatio
}

func isASCIIWord(w string) bool {
	for i := 0; i < len(w); i++ {
		c := w[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
