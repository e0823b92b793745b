package engine

import (
	"regexp"
	"time"

	"github.com/vango-go/vai-kiosk/pkg/menu"
)

const DefaultDeletionDebounce = 3 * time.Second

// completionPatterns match folded agent text (see menu.Fold): lower case,
// hamza carriers and taa marbuta already normalized.
var completionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\border_complete\b`),
	regexp.MustCompile(`\border (?:is )?complete\b`),
	regexp.MustCompile(`\byour order is ready\b`),
	regexp.MustCompile(`(?:anything|something) else`),
	regexp.MustCompile(`طلبك جاهز`),
	regexp.MustCompile(`تم الطلب`),
	regexp.MustCompile(`الطلب كامل`),
	regexp.MustCompile(`هل (?:هذا|ده) (?:كل )?(?:شيء|حاجه)`),
	regexp.MustCompile(`تحب تضيف (?:اي )?(?:حاجه|شيء) (?:تاني|ثاني)`),
}

// IsCompletionSignal reports whether an agent utterance asks to finalize or
// declares the order finished.
func IsCompletionSignal(text string) bool {
	folded := menu.Fold(text)
	if folded == "" {
		return false
	}
	for _, re := range completionPatterns {
		if re.MatchString(folded) {
			return true
		}
	}
	return false
}
