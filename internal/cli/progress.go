package cli

import (
	"fmt"
	"sync"
	"time"
)

var spinnerChars = []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}

// ProgressSpinner shows which variation is running while the runner
// subprocess owns the measurement.
type ProgressSpinner struct {
	mu           sync.Mutex
	spinnerIndex int
	startTime    time.Time
	message      string
	done         int
	total        int
	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
}

func NewProgressSpinner() *ProgressSpinner {
	return &ProgressSpinner{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (p *ProgressSpinner) Start(total int) {
	p.mu.Lock()
	p.startTime = time.Now()
	p.total = total
	p.done = 0
	p.message = ""
	p.running = true
	p.mu.Unlock()

	go p.run()
}

func (p *ProgressSpinner) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.clearLine()
			return
		case <-ticker.C:
			p.render()
		}
	}
}

func (p *ProgressSpinner) line() string {
	spinner := spinnerChars[p.spinnerIndex]
	p.spinnerIndex = (p.spinnerIndex + 1) % len(spinnerChars)

	elapsed := time.Since(p.startTime)
	return fmt.Sprintf("%s  %c %s  [%d/%d variations]  elapsed: %dm%02ds",
		Indent,
		spinner,
		p.message,
		p.done, p.total,
		int(elapsed.Minutes()), int(elapsed.Seconds())%60,
	)
}

func (p *ProgressSpinner) render() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	line := p.line()
	p.mu.Unlock()

	fmt.Fprintf(out, "\r\033[K%s", line)
}

func (p *ProgressSpinner) clearLine() {
	fmt.Fprint(out, "\r\033[K")
}

// Update marks the variation now running and how many have finished.
func (p *ProgressSpinner) Update(benchmark, query string, concurrency, done int) {
	p.mu.Lock()
	p.message = fmt.Sprintf("Running %s %s C=%d...", benchmark, query, concurrency)
	p.done = done
	p.mu.Unlock()
}

func (p *ProgressSpinner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh
}
