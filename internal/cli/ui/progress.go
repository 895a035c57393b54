package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a message on one terminal line while work is running
type Spinner struct {
	writer   io.Writer
	message  string
	interval time.Duration
	noColor  bool

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.WaitGroup
}

// NewSpinner creates a spinner. It draws nothing until Start.
func NewSpinner(w io.Writer, message string, noColor bool) *Spinner {
	return &Spinner{
		writer:   w,
		message:  message,
		interval: 100 * time.Millisecond,
		noColor:  noColor,
	}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}

	s.stop = make(chan struct{})
	s.stopped.Add(1)
	go s.animate(s.stop)
}

// Stop ends the animation and clears the line
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}

	close(s.stop)
	s.stopped.Wait()
	s.stop = nil
	fmt.Fprint(s.writer, "\r\033[K")
}

func (s *Spinner) animate(stop <-chan struct{}) {
	defer s.stopped.Done()

	cyan := color.New(color.FgCyan)
	if s.noColor {
		cyan.DisableColor()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for frame := 0; ; frame = (frame + 1) % len(spinnerFrames) {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cyan.Fprintf(s.writer, "\r%s %s", spinnerFrames[frame], s.message)
		}
	}
}

// WithSpinner runs fn while showing message. A disabled spinner just runs fn.
func WithSpinner(w io.Writer, message string, enabled, noColor bool, fn func() error) error {
	if !enabled {
		return fn()
	}

	s := NewSpinner(w, message, noColor)
	s.Start()
	defer s.Stop()
	return fn()
}
