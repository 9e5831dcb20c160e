// Package assistant drives the listen → screenshot → analyze → speak
// loop. The surrounding hardware and vendor services come in as
// capability interfaces so the orchestration is testable without a
// microphone, a display or the network.
package assistant

import (
	"context"
	"errors"
	log "log/slog"

	"vista/internal/audio"
	"vista/internal/textproc"
)

// Listener produces one user utterance as text: capture plus speech to
// text. audio.ErrNoSpeech means a quiet listen window.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Screener captures the screen and disposes of the files afterwards.
type Screener interface {
	Capture(ctx context.Context) ([]string, error)
	Cleanup(paths []string)
}

// Analyzer answers a question about the given screenshots.
type Analyzer interface {
	Ask(ctx context.Context, question string, imagePaths []string) (string, error)
}

// Speaker plays an answer back to the user.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Notifier signals that the assistant started listening. Optional.
type Notifier interface {
	Listening()
}

type Options struct {
	// ApologyText is spoken when a turn fails past the retry budget.
	ApologyText string
	// RequireQuestion drops utterances that do not look like questions.
	RequireQuestion bool
}

type Assistant struct {
	listener Listener
	screener Screener
	analyzer Analyzer
	speaker  Speaker
	notifier Notifier
	opts     Options
}

func New(l Listener, sc Screener, a Analyzer, sp Speaker, n Notifier, opts Options) *Assistant {
	if opts.ApologyText == "" {
		opts.ApologyText = "Desculpe, ocorreu um erro ao processar sua pergunta."
	}
	return &Assistant{
		listener: l,
		screener: sc,
		analyzer: a,
		speaker:  sp,
		notifier: n,
		opts:     opts,
	}
}

// Run processes turns until the context is cancelled. One utterance is
// handled fully before listening resumes; no error escapes a turn.
func (a *Assistant) Run(ctx context.Context) error {
	log.Info("Assistant ready")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		a.Turn(ctx)
	}
}

// RunTriggered handles one turn per trigger signal (push-to-talk mode).
func (a *Assistant) RunTriggered(ctx context.Context, triggers <-chan struct{}) error {
	log.Info("Assistant ready", "mode", "push-to-talk")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-triggers:
			a.Turn(ctx)
		}
	}
}

// Turn runs a single listen/analyze/speak cycle. Every failure is
// recovered by skipping to the next turn.
func (a *Assistant) Turn(ctx context.Context) {
	if a.notifier != nil {
		a.notifier.Listening()
	}

	question, err := a.listener.Listen(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrNoSpeech) {
			log.Debug("Nothing heard, listening again")
			return
		}
		if ctx.Err() != nil {
			return
		}
		log.Error("Capture failed", "err", err)
		return
	}

	if a.opts.RequireQuestion && !textproc.IsQuestion(question) {
		log.Debug("Utterance skipped", "text", question)
		return
	}

	log.Info("Question", "text", question)

	shots, err := a.screener.Capture(ctx)
	if err != nil {
		log.Error("Screenshot failed", "err", err)
		return
	}
	defer a.screener.Cleanup(shots)

	answer, err := a.analyzer.Ask(ctx, question, shots)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("Analysis failed", "err", err)
		a.say(ctx, a.opts.ApologyText)
		return
	}

	log.Info("Answer", "text", answer)
	a.say(ctx, textproc.ForSpeech(answer))
}

func (a *Assistant) say(ctx context.Context, text string) {
	if err := a.speaker.Speak(ctx, text); err != nil {
		log.Error("Speech failed", "err", err)
	}
}
