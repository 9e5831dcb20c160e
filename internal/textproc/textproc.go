// Package textproc shapes text on both sides of the pipeline: deciding
// whether an utterance is worth answering, and rewriting model output so
// the speech synthesizer reads it naturally in pt-BR.
package textproc

import (
	"regexp"
	"strings"
)

var questionCues = []string{
	"?", "quem", "qual", "quais", "quando", "onde", "por que",
	"como", "o que", "me diga", "pode me dizer", "sabe",
	"explique", "descreva", "me fale", "conte", "mostre",
	"ajude", "preciso", "gostaria",
}

// IsQuestion reports whether the utterance looks like something the
// assistant should answer. Longer phrases pass regardless of cues so
// imperative requests are not dropped.
func IsQuestion(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if len(strings.Fields(text)) >= 3 {
		return true
	}
	lower := strings.ToLower(text)
	for _, cue := range questionCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// StripNoise removes the characters the model tends to sprinkle into
// answers that only confuse the synthesizer.
func StripNoise(text string) string {
	return strings.NewReplacer("*", "", "´", "", "`", "", `"`, "", "'", "").Replace(text)
}

var specialChars = strings.NewReplacer(
	"%", " por cento",
	"$", " reais",
	"€", " euros",
	"£", " libras",
	"@", " arroba",
	"#", " hashtag",
	"&", " e",
	"+", " mais",
	"=", " igual a",
	"<", " menor que",
	">", " maior que",
	"™", "",
	"®", "",
	"©", "",
	"°", " graus",
)

var abbreviations = map[string]string{
	"dr.":    "doutor",
	"dra.":   "doutora",
	"sr.":    "senhor",
	"sra.":   "senhora",
	"prof.":  "professor",
	"profa.": "professora",
	"eng.":   "engenheiro",
	"etc.":   "etcétera",
	"ex.":    "exemplo",
	"tel.":   "telefone",
	"cel.":   "celular",
	"av.":    "avenida",
	"hrs.":   "horas",
	"min.":   "minutos",
	"seg.":   "segundos",
}

var (
	spacesRe  = regexp.MustCompile(`\s+`)
	decimalRe = regexp.MustCompile(`\d+\.\d+`)
	dateRe    = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)
	pauseRe   = regexp.MustCompile(`([.!?;])`)
)

var urlParts = strings.NewReplacer(
	"www.", "www ponto ",
	".com", " ponto com",
	".org", " ponto org",
	".gov", " ponto gov",
	".edu", " ponto edu",
	".br", " ponto br",
	"//", " barra barra ",
)

// ForSpeech rewrites an answer so the TTS engine reads it naturally:
// markdown noise and control characters out, symbols, decimals, dates,
// URLs and abbreviations spelled the way they are spoken.
func ForSpeech(text string) string {
	text = clean(text)
	text = specialChars.Replace(text)
	text = formatNumbers(text)
	text = urlParts.Replace(text)
	text = expandAbbreviations(text)
	text = pauseRe.ReplaceAllString(text, "$1, ")
	return strings.TrimSpace(text)
}

func clean(text string) string {
	text = StripNoise(text)
	text = spacesRe.ReplaceAllString(text, " ")
	var b strings.Builder
	for _, r := range text {
		if r >= ' ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func formatNumbers(text string) string {
	text = decimalRe.ReplaceAllStringFunc(text, func(num string) string {
		parts := strings.SplitN(num, ".", 2)
		if len(parts[1]) == 1 {
			parts[1] += "0"
		}
		return parts[0] + " vírgula " + parts[1]
	})
	return dateRe.ReplaceAllString(text, "$1 de $2 de $3")
}

func expandAbbreviations(text string) string {
	words := strings.Split(text, " ")
	for i, w := range words {
		if full, ok := abbreviations[strings.ToLower(w)]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

var stopWords = map[string]bool{
	"a": true, "o": true, "e": true, "é": true, "de": true, "do": true,
	"da": true, "em": true, "para": true, "com": true, "um": true, "uma": true,
}

// Tags extracts up to max keywords from the text for history search.
func Tags(text string, max int) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var b strings.Builder
		for _, r := range word {
			if isAlnum(r) {
				b.WriteRune(r)
			}
		}
		w := b.String()
		if len([]rune(w)) <= 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) >= max {
			break
		}
	}
	return tags
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
}
