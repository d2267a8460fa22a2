package chatlog

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/wolfman30/atacado-crm/internal/chatbot"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// DefaultKeywords are product words tracked even when the catalog is empty.
var DefaultKeywords = []string{
	"arroz", "feijão", "açúcar", "óleo", "café", "farinha", "macarrão",
	"leite", "sal", "refrigerante", "cerveja", "água", "suco",
	"detergente", "sabão", "desinfetante", "papel higiênico", "biscoito",
}

// MentionExtractor finds product names in an exchange.
type MentionExtractor struct {
	catalog  chatbot.CatalogReader
	keywords []string
	timeout  time.Duration
	logger   *logging.Logger
}

func NewMentionExtractor(catalog chatbot.CatalogReader, keywords []string, timeout time.Duration, logger *logging.Logger) *MentionExtractor {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MentionExtractor{catalog: catalog, keywords: keywords, timeout: timeout, logger: logger}
}

// Mentions returns the catalog product names, then the keywords, that occur
// in text. Matching ignores case and accents. A keyword already covered by a
// matched product name is not repeated.
func (m *MentionExtractor) Mentions(ctx context.Context, text string) []string {
	haystack := fold(text)
	if haystack == "" {
		return []string{}
	}

	found := []string{}
	var matchedNames []string
	for _, name := range m.productNames(ctx) {
		folded := fold(name)
		if folded != "" && containsWord(haystack, folded) {
			found = append(found, name)
			matchedNames = append(matchedNames, folded)
		}
	}
	for _, kw := range m.keywords {
		folded := fold(kw)
		if folded == "" || !containsWord(haystack, folded) {
			continue
		}
		covered := false
		for _, name := range matchedNames {
			if strings.Contains(name, folded) {
				covered = true
				break
			}
		}
		if !covered {
			found = append(found, kw)
		}
	}
	return found
}

func (m *MentionExtractor) productNames(ctx context.Context) []string {
	if m == nil || m.catalog == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	products, err := m.catalog.ListActive(ctx)
	if err != nil {
		m.logger.Warn("chatlog: catalog unavailable for mention extraction", "error", err)
		return nil
	}
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return names
}

// fold lowercases and strips diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// containsWord reports whether needle occurs in haystack on word boundaries.
func containsWord(haystack, needle string) bool {
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		if boundaryBefore(haystack, i) && boundaryAfter(haystack, end) {
			return true
		}
		start = i + 1
	}
}

// boundaryBefore reports whether the rune ending at byte i is not part of a word.
func boundaryBefore(s string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

// boundaryAfter reports whether the rune starting at byte i is not part of a word.
func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
