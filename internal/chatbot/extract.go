package chatbot

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FieldExtractor pulls one contact field out of free text. ok is false when
// nothing safe was found.
type FieldExtractor func(text string) (value string, ok bool)

// Extractors groups the strategies used during data collection.
type Extractors struct {
	Name  FieldExtractor
	Phone FieldExtractor
	Email FieldExtractor
}

// DefaultExtractors returns the pattern-based extractors.
func DefaultExtractors() Extractors {
	return Extractors{Name: ExtractName, Phone: ExtractPhone, Email: ExtractEmail}
}

func (e Extractors) withDefaults() Extractors {
	if e.Name == nil {
		e.Name = ExtractName
	}
	if e.Phone == nil {
		e.Phone = ExtractPhone
	}
	if e.Email == nil {
		e.Email = ExtractEmail
	}
	return e
}

var (
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	phoneSpanPattern = regexp.MustCompile(`\+?\(?\d[\d\s().\-]*\d`)
	introPattern     = regexp.MustCompile(`(?i)(?:^|[\s,.!])(?:meu nome [ée]|me chamo|pode me chamar de|aqui [ée] (?:o|a)|aqui [ée]|eu sou (?:o|a)|eu sou|sou (?:o|a)|sou|my name is|i am|i'm|this is)\s+(.+)$`)
	nameWordPattern  = regexp.MustCompile(`^[\p{L}][\p{L}'\-]*$`)
)

// ExtractEmail returns the first e-mail address in text, lowercased.
func ExtractEmail(text string) (string, bool) {
	match := emailPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return strings.ToLower(strings.TrimRight(match, ".")), true
}

// ExtractPhone returns the first 10 or 11 digit Brazilian number in text
// formatted as (DD) DDDDD-DDDD or (DD) DDDD-DDDD. A leading +55 is dropped.
func ExtractPhone(text string) (string, bool) {
	for _, span := range phoneSpanPattern.FindAllString(text, -1) {
		digits := onlyDigits(span)
		if strings.HasPrefix(span, "+") && strings.HasPrefix(digits, "55") && (len(digits) == 12 || len(digits) == 13) {
			digits = digits[2:]
		}
		switch len(digits) {
		case 11:
			return "(" + digits[:2] + ") " + digits[2:7] + "-" + digits[7:], true
		case 10:
			return "(" + digits[:2] + ") " + digits[2:6] + "-" + digits[6:], true
		}
	}
	return "", false
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nameStopwords are words that look like names to the pattern but never are.
var nameStopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		oi ola olá opa bom boa dia tarde noite tudo bem beleza blz
		sim nao não ok okay certo claro talvez obrigado obrigada valeu
		whatsapp whats zap wpp email e-mail telefone celular fone numero número contato
		nome meu minha eu voce você quero queria preciso gostaria pode
		produto produtos preco preço precos preços valor comprar compra atacado
		cliente interessado interessada loja empresa teste ajuda duvida dúvida
		yes no hi hello hey thanks thank name interested help test
		quanto quanta quantos quantas custa custam tem têm qual quais onde como quando
		vocês voces vcs vende vendem entrega entregam aceita aceitam cadê cade porque
		what how much price do does
	`) {
		nameStopwords[w] = struct{}{}
	}
}

var nameParticles = map[string]struct{}{"da": {}, "de": {}, "do": {}, "das": {}, "dos": {}, "e": {}}

// ExtractName accepts an introduction ("meu nome é X", "me chamo X",
// "my name is X") or a bare reply of one or two words plus particles
// ("joão da silva"). Questions, digits, e-mail addresses and stopwords
// disqualify the candidate.
func ExtractName(text string) (string, bool) {
	cleaned := emailPattern.ReplaceAllString(text, " ")
	cleaned = phoneSpanPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", false
	}

	if m := introPattern.FindStringSubmatch(cleaned); m != nil {
		words := leadingNameWords(m[1], 4)
		if name, ok := normalizeName(words); ok {
			return name, true
		}
		return "", false
	}

	if strings.ContainsRune(cleaned, '?') {
		return "", false
	}
	words := strings.Fields(strings.Trim(cleaned, " ,.;:!-"))
	significant := 0
	for i := range words {
		words[i] = strings.Trim(words[i], ",.;:!")
		if _, particle := nameParticles[strings.ToLower(words[i])]; !particle {
			significant++
		}
	}
	if significant == 0 || significant > 2 || len(words) > 4 {
		return "", false
	}
	if _, particle := nameParticles[strings.ToLower(words[len(words)-1])]; particle {
		return "", false
	}
	return normalizeName(words)
}

// leadingNameWords collects up to max words until punctuation or a non-word.
func leadingNameWords(s string, max int) []string {
	var words []string
	for _, raw := range strings.Fields(s) {
		word := strings.TrimRightFunc(raw, func(r rune) bool { return unicode.IsPunct(r) && r != '\'' && r != '-' })
		if !nameWordPattern.MatchString(word) {
			break
		}
		if _, stop := nameStopwords[strings.ToLower(word)]; stop {
			break
		}
		words = append(words, word)
		if len(words) == max || word != raw {
			break
		}
	}
	for len(words) > 0 {
		if _, ok := nameParticles[strings.ToLower(words[len(words)-1])]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return words
}

func normalizeName(words []string) (string, bool) {
	if len(words) == 0 {
		return "", false
	}
	caser := cases.Title(language.BrazilianPortuguese)
	out := make([]string, 0, len(words))
	for i, w := range words {
		if !nameWordPattern.MatchString(w) {
			return "", false
		}
		lower := strings.ToLower(w)
		if _, stop := nameStopwords[lower]; stop {
			return "", false
		}
		if _, particle := nameParticles[lower]; particle {
			if i == 0 {
				return "", false
			}
			out = append(out, lower)
			continue
		}
		if len([]rune(w)) < 2 {
			return "", false
		}
		out = append(out, caser.String(w))
	}
	return strings.Join(out, " "), true
}
