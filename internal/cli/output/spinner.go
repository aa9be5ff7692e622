package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows progress for a long-running step. On a TTY it animates
// in place on the error writer; elsewhere it prints the message once
// and the outcome when done.
type Spinner struct {
	w       io.Writer
	isTTY   bool
	message string
	styles  Styles

	mu     sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
	active bool
}

func newSpinner(w io.Writer, isTTY bool, message string, styles Styles) *Spinner {
	return &Spinner{w: w, isTTY: isTTY, message: message, styles: styles}
}

// Start begins the animation. Calling Start twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true

	if !s.isTTY {
		fmt.Fprintf(s.w, "%s\n", s.message)
		return
	}

	done := make(chan struct{})
	s.done = done
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.message)
				s.mu.Unlock()
				frame++
			}
		}
	}()
}

// Success stops the spinner and prints the message with a check mark.
func (s *Spinner) Success(message string) {
	s.finish(s.styles.StatusSuccess.String(), message)
}

// Fail stops the spinner and prints the message with a cross.
func (s *Spinner) Fail(message string) {
	s.finish(s.styles.StatusFailed.String(), message)
}

func (s *Spinner) finish(icon, message string) {
	s.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTTY {
		// Clear the animation frame before the final line.
		fmt.Fprint(s.w, "\r\033[K")
	}
	fmt.Fprintf(s.w, "%s %s\n", icon, message)
}

func (s *Spinner) stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	done := s.done
	s.done = nil
	s.mu.Unlock()

	if done != nil {
		close(done)
		s.wg.Wait()
	}
}
