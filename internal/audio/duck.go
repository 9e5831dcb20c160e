package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

// Ducker fades down every other application's playback while the
// assistant is listening or speaking, and restores it afterwards.
// Streams whose application.name matches selfNames are left alone.
type Ducker struct {
	mu        sync.Mutex
	active    bool
	selfNames []string
	original  map[int]int // sink-input id -> volume % before ducking
	minVolume int
}

func NewDucker(selfNames []string, minVolume int) *Ducker {
	if minVolume < 0 {
		minVolume = 0
	}
	if minVolume > 100 {
		minVolume = 100
	}
	return &Ducker{
		selfNames: append([]string(nil), selfNames...),
		original:  make(map[int]int),
		minVolume: minVolume,
	}
}

// Duck lowers foreign streams to current*factor, floored at minVolume,
// fading over the given duration. Calling Duck while already ducked is a
// no-op.
func (d *Ducker) Duck(ctx context.Context, factor float64, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.original = make(map[int]int)
	var steps []volumeStep

	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		target := int(math.Round(float64(s.Volume) * factor))
		if target < d.minVolume {
			target = d.minVolume
		}
		d.original[s.ID] = s.Volume
		steps = append(steps, volumeStep{id: s.ID, from: s.Volume, to: target})
	}

	if len(steps) > 0 {
		if err := fadeVolumes(ctx, steps, fade); err != nil {
			return err
		}
	}

	d.active = true
	return nil
}

// Restore fades foreign streams back to the volumes recorded by Duck.
// Streams that appeared after ducking are not touched.
func (d *Ducker) Restore(ctx context.Context, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	var steps []volumeStep
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		orig, ok := d.original[s.ID]
		if !ok {
			continue
		}
		steps = append(steps, volumeStep{id: s.ID, from: s.Volume, to: orig})
	}

	if len(steps) > 0 {
		if err := fadeVolumes(ctx, steps, fade); err != nil {
			return err
		}
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s sinkInput) bool {
	for _, name := range d.selfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

type volumeStep struct {
	id   int
	from int
	to   int
}

func fadeVolumes(ctx context.Context, targets []volumeStep, fade time.Duration) error {
	if fade <= 0 {
		for _, t := range targets {
			if err := setSinkInputVolume(ctx, t.id, t.to); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}
		return nil
	}

	const stepDur = 10 * time.Millisecond

	steps := int(fade / stepDur)
	if steps < 1 {
		steps = 1
	}

	for i := 0; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := setSinkInputVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}

		if i < steps {
			time.Sleep(fade / time.Duration(steps))
		}
	}
	return nil
}

func listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func parseSinkInputs(text string) []sinkInput {
	parts := strings.Split(text, "Sink Input #")
	var res []sinkInput

	for i := 1; i < len(parts); i++ {
		block := parts[i]
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if idx := strings.Index(line, `"`); idx >= 0 {
					rest := line[idx+1:]
					if end := strings.Index(rest, `"`); end >= 0 {
						s.AppName = rest[:end]
					}
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	arg := fmt.Sprintf("%d%%", percent)
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}
