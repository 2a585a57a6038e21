package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

const barWidth = 30

// lineProgress redraws a single status line on every update.
type lineProgress struct {
	mu      sync.Mutex
	w       io.Writer
	unit    string
	total   int64
	done    int64
	started time.Time
	now     func() time.Time
}

// NewProgressReporter creates a reporter counting unit ("entities",
// "records", ...) on w, or on stderr when w is nil.
func NewProgressReporter(w io.Writer, unit string) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &lineProgress{w: w, unit: unit, now: time.Now}
}

func (p *lineProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total, p.done, p.started = total, 0, p.now()
	p.draw()
}

func (p *lineProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = min(current, p.total)
	p.draw()
}

func (p *lineProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = p.total
	p.draw()
	fmt.Fprintln(p.w)
}

func (p *lineProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n✗ %v\n", err)
}

// draw renders "[=====>    ] 6/12 entities 50% 1.2s". Caller must hold mu.
func (p *lineProgress) draw() {
	if p.total <= 0 {
		return
	}
	filled := int(p.done * barWidth / p.total)
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	fmt.Fprintf(p.w, "\r[%s] %d/%d %s %d%% %s",
		bar, p.done, p.total, p.unit, p.done*100/p.total, p.now().Sub(p.started).Round(100*time.Millisecond))
}
