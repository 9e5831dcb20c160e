// Package audio captures microphone input for the assistant. The recorder
// endpoints on RMS energy: recording starts once speech rises above the
// configured threshold and stops after a stretch of trailing silence.
package audio

import (
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrNoSpeech means the listen window elapsed without anyone talking.
// The assistant loop treats it as "skip the turn", not a failure.
var ErrNoSpeech = errors.New("no speech detected before timeout")

const (
	sampleRate = 16000
	frameSize  = 320 // 20ms at 16kHz
	frameMs    = 20
)

type Options struct {
	// SilenceThreshold is the RMS level below which a frame counts as silence.
	SilenceThreshold float64
	// MinSilence ends the utterance once this much trailing silence accumulates.
	MinSilence time.Duration
	// SpeechTimeout bounds how long we wait for speech to start.
	SpeechTimeout time.Duration
	// MaxPhrase bounds a single utterance.
	MaxPhrase time.Duration
}

type Recorder struct {
	opts Options
}

func NewRecorder(opts Options) *Recorder {
	if opts.SilenceThreshold <= 0 {
		opts.SilenceThreshold = 0.015
	}
	if opts.MinSilence <= 0 {
		opts.MinSilence = 1500 * time.Millisecond
	}
	if opts.SpeechTimeout <= 0 {
		opts.SpeechTimeout = 10 * time.Second
	}
	if opts.MaxPhrase <= 0 {
		opts.MaxPhrase = 30 * time.Second
	}
	return &Recorder{opts: opts}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// SampleRate reports the PCM rate Record produces, which is what the
// transcriber expects.
func (r *Recorder) SampleRate() int { return sampleRate }

// Record waits for speech and returns the utterance as 16 kHz mono
// float32 PCM. ErrNoSpeech is returned when the speech timeout elapses
// with nothing above the threshold.
func (r *Recorder) Record() ([]float32, error) {
	buf := make([]float32, frameSize)
	out := make([]float32, 0, sampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		speaking      bool
		silenceFrames int
		waitedFrames  int
	)

	silenceLimit := int(r.opts.MinSilence.Milliseconds() / frameMs)
	waitLimit := int(r.opts.SpeechTimeout.Milliseconds() / frameMs)
	maxFrames := int(r.opts.MaxPhrase.Milliseconds() / frameMs)

	for i := 0; i < maxFrames; i++ {
		if err := stream.Read(); err != nil {
			return nil, err
		}

		rms := frameRMS(buf)

		if rms > r.opts.SilenceThreshold {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
			continue
		}

		if !speaking {
			waitedFrames++
			if waitedFrames >= waitLimit {
				return nil, ErrNoSpeech
			}
			continue
		}

		silenceFrames++
		if silenceFrames >= silenceLimit {
			break
		}
		out = append(out, buf...)
	}

	if len(out) == 0 {
		return nil, ErrNoSpeech
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
