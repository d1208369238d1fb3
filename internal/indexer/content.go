package indexer

import (
	"strings"
	"unicode"

	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/pkg/utils"
)

// MaxExcerptRunes caps how much of the body excerpt goes into the search content.
const MaxExcerptRunes = 2000

// BuildContent concatenates subject, sender name, sender address and body excerpt into
// the text that is indexed lexically and embedded. Empty parts are skipped.
func BuildContent(msg *models.Message) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{
		msg.Subject,
		msg.SenderName,
		msg.SenderAddress,
		utils.Truncate(Preprocess(msg.BodyExcerpt), MaxExcerptRunes),
	} {
		if p = Preprocess(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Preprocess normalizes text for indexing (trim, collapse whitespace).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
