// Package tts speaks answers through espeak-ng.
package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type Speaker struct {
	voice string
	run   func(ctx context.Context, voice, text string) error
}

// NewSpeaker maps an assistant language tag (pt-BR, en-US, ...) onto an
// espeak-ng voice.
func NewSpeaker(language string) *Speaker {
	return &Speaker{
		voice: voiceFor(language),
		run: func(ctx context.Context, voice, text string) error {
			return exec.CommandContext(ctx, "espeak-ng", "-v", voice, text).Run()
		},
	}
}

// Speak synthesizes and plays the text, blocking until playback ends.
// Empty text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := s.run(ctx, s.voice, text); err != nil {
		return fmt.Errorf("espeak-ng: %w", err)
	}
	return nil
}

func voiceFor(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		return "pt-br"
	}
	// espeak-ng voices use lowercase tags; a plain language code is a
	// valid voice too ("pt", "en").
	return strings.ReplaceAll(lang, "_", "-")
}
