// Package notify plays the short audible cue that tells the user the
// assistant is listening.
package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

var initOnce sync.Once

// Cue plays the mp3 at path and blocks until it finishes. A missing or
// broken cue file is reported, not fatal; the caller decides whether the
// turn goes on silently.
func Cue(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cue %s: %w", path, err)
	}
	defer f.Close()

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		return fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	var initErr error
	initOnce.Do(func() {
		initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if initErr != nil {
		return fmt.Errorf("init speaker: %w", initErr)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))
	<-done

	return nil
}
