// Package screenshot captures the screen through whichever external
// grabber is installed and manages the resulting temporary files.
package screenshot

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// grabbers in preference order; the argument list ends with the output
// path appended at capture time.
var grabbers = [][]string{
	{"grim"},
	{"gnome-screenshot", "-f"},
	{"maim"},
	{"scrot", "-o"},
	{"import", "-window", "root"},
}

type Options struct {
	Dir    string
	Format string // file extension, e.g. "png"
	Max    int    // per-turn capture cap
}

type Manager struct {
	opts    Options
	tool    []string
	lookup  func(string) (string, error)
	capture func(ctx context.Context, args []string) error
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		opts.Dir = "screenshots"
	}
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Max <= 0 {
		opts.Max = 1
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}

	m := &Manager{
		opts:   opts,
		lookup: exec.LookPath,
		capture: func(ctx context.Context, args []string) error {
			return exec.CommandContext(ctx, args[0], args[1:]...).Run()
		},
	}
	return m, nil
}

// Capture grabs every connected output (bounded by Max) and returns the
// written file paths.
func (m *Manager) Capture(ctx context.Context) ([]string, error) {
	tool, err := m.grabber()
	if err != nil {
		return nil, err
	}

	var paths []string
	for i := 0; i < m.opts.Max; i++ {
		path := filepath.Join(m.opts.Dir, m.filename())
		args := append(append([]string(nil), tool...), path)
		if err := m.capture(ctx, args); err != nil {
			if len(paths) > 0 {
				break // secondary outputs are best effort
			}
			return nil, fmt.Errorf("capture with %s: %w", tool[0], err)
		}
		paths = append(paths, path)
		// Single-output grabbers produce the same frame; one is enough.
		break
	}
	return paths, nil
}

// Cleanup removes capture files once the request is done with them.
func (m *Manager) Cleanup(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove screenshot", "path", p, "err", err)
		}
	}
}

func (m *Manager) grabber() ([]string, error) {
	if m.tool != nil {
		return m.tool, nil
	}
	for _, g := range grabbers {
		if _, err := m.lookup(g[0]); err == nil {
			m.tool = g
			log.Debug("Using screen grabber", "tool", g[0])
			return g, nil
		}
	}
	return nil, fmt.Errorf("no screen grabber found (tried grim, gnome-screenshot, maim, scrot, import)")
}

func (m *Manager) filename() string {
	stamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("vista_%s_%s.%s", stamp, uuid.NewString()[:8], m.opts.Format)
}
