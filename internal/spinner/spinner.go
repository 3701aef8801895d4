// Package spinner shows an animated status line while long work runs.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Interval is the time between two frames.
const Interval = 80 * time.Millisecond

// Start displays an animated spinner on w followed by the text returned by
// status, which is called again for every frame. Call the returned function
// to stop the spinner and clear the line.
func Start(w io.Writer, status func() string) (stop func()) {
	done := make(chan struct{})
	cleared := make(chan struct{})
	var stopOnce sync.Once
	go func() {
		i, width := 0, 0
		ticker := time.NewTicker(Interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", width)) //nolint:errcheck
				close(cleared)
				return
			case <-ticker.C:
				line := frames[i%len(frames)] + " " + status()
				// pad over a longer previous status
				pad := max(width-runewidth.StringWidth(line), 0)
				fmt.Fprintf(w, "\r%s%s", line, strings.Repeat(" ", pad)) //nolint:errcheck
				width = max(width, runewidth.StringWidth(line))
				i++
			}
		}
	}()
	return func() {
		stopOnce.Do(func() {
			close(done)
		})
		<-cleared
	}
}
