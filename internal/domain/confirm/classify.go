package confirm

import (
	"strings"
	"unicode"
)

// Decision is the outcome of classifying a user's reply to a
// confirmation prompt.
type Decision string

const (
	Confirmed Decision = "confirmed"
	Cancelled Decision = "cancelled"
	Unclear   Decision = "unclear"
)

// Keyword sets cover both Chinese and English replies. ASCII keywords
// match whole words; CJK keywords match as substrings since Chinese
// text carries no word boundaries.
var (
	confirmKeywords = []string{
		"确认", "确定", "是的", "好的", "可以", "同意",
		"yes", "y", "ok", "okay", "confirm", "confirmed", "proceed", "sure",
	}
	cancelKeywords = []string{
		"取消", "算了", "不要", "不用", "停止",
		"no", "n", "cancel", "cancelled", "stop", "abort", "nevermind",
	}
)

// Classify maps a free-text reply onto a decision. Replies that match
// neither set, or match both, stay Unclear so the gate re-asks instead
// of guessing.
func Classify(text string) Decision {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return Unclear
	}

	confirmed := matchesAny(norm, confirmKeywords)
	cancelled := matchesAny(norm, cancelKeywords)

	switch {
	case confirmed && cancelled:
		return Unclear
	case confirmed:
		return Confirmed
	case cancelled:
		return Cancelled
	default:
		return Unclear
	}
}

func matchesAny(norm string, keywords []string) bool {
	var tokens []string
	for _, kw := range keywords {
		if isASCII(kw) {
			if tokens == nil {
				tokens = tokenize(norm)
			}
			for _, tok := range tokens {
				if tok == kw {
					return true
				}
			}
			continue
		}
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
