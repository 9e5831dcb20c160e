package textproc

import (
	"strings"
	"testing"
)

func TestIsQuestion(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"o que está na tela?", true},
		{"qual", true},
		{"como funciona isso", true},
		{"me mostre os erros que apareceram", true},
		{"oi", false},
		{"legal", false},
		{"", false},
		{"   ", false},
		{"abra o navegador agora", true}, // three words pass
	}

	for _, tc := range cases {
		if got := IsQuestion(tc.text); got != tc.want {
			t.Errorf("IsQuestion(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestStripNoise(t *testing.T) {
	got := StripNoise(`O *erro* está na linha 'dez' do "arquivo"`)
	want := "O erro está na linha dez do arquivo"
	if got != want {
		t.Errorf("StripNoise = %q, want %q", got, want)
	}
}

func TestForSpeech(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"o uso subiu 15%", "o uso subiu 15 por cento"},
		{"a taxa é 3.5", "a taxa é 3 vírgula 50"},
		{"entregue em 01/02/2026", "entregue em 01 de 02 de 2026"},
		{"acesse www.exemplo.com", "acesse www ponto exemplo ponto com"},
		{"fale com o dr. Silva", "fale com o doutor Silva"},
	}

	for _, tc := range cases {
		if got := ForSpeech(tc.in); got != tc.want {
			t.Errorf("ForSpeech(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestForSpeechAddsPauses(t *testing.T) {
	got := ForSpeech("Primeiro passo. Segundo passo")
	if !strings.Contains(got, "passo., Segundo") && !strings.Contains(got, "passo. , Segundo") {
		// A pause marker must follow sentence punctuation.
		if !strings.Contains(got, ".,") {
			t.Errorf("no pause inserted after punctuation: %q", got)
		}
	}
}

func TestForSpeechStripsControlChars(t *testing.T) {
	got := ForSpeech("linha um\x00\x07 linha dois")
	if strings.ContainsAny(got, "\x00\x07") {
		t.Errorf("control characters survived: %q", got)
	}
}

func TestTags(t *testing.T) {
	tags := Tags("Qual aplicativo está consumindo mais memória no sistema", 5)
	if len(tags) == 0 || len(tags) > 5 {
		t.Fatalf("tags = %v", tags)
	}
	for _, tag := range tags {
		if stopWords[tag] {
			t.Errorf("stop word %q leaked into tags", tag)
		}
		if len([]rune(tag)) <= 3 {
			t.Errorf("short word %q leaked into tags", tag)
		}
	}
}

func TestTagsDeduplicates(t *testing.T) {
	tags := Tags("memória memória memória", 5)
	if len(tags) != 1 {
		t.Errorf("tags = %v, want single entry", tags)
	}
}
