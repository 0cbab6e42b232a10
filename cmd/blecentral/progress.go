package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps a single status line up to date while a scan runs.
//
// Usage:
//
//	p := NewProgressPrinter(w, "Scanning for BLE devices", 10*time.Second, manager.Len)
//	p.Start()
//	defer p.Stop()
//
// With a zero duration the elapsed time is shown, otherwise the remaining time.
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	duration time.Duration
	count    func() int

	startTime time.Time
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	stopped   atomic.Bool
}

// NewProgressPrinter creates a printer. count, when not nil, reports the number
// of devices found so far.
func NewProgressPrinter(w io.Writer, prefix string, duration time.Duration, count func() int) *ProgressPrinter {
	return &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		duration: duration,
		count:    count,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.startTime = time.Now()
	p.print(time.Now())

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case now := <-ticker.C:
				p.print(now)
			}
		}
	}()
}

// line renders the status line for the given instant
func (p *ProgressPrinter) line(now time.Time) string {
	elapsed := now.Sub(p.startTime)

	var timing string
	if p.duration > 0 {
		remaining := p.duration - elapsed
		seconds := 0
		if remaining > 0 {
			// Round to the nearest second, e.g. 3.7s -> 4s
			seconds = int(remaining.Seconds() + 0.5)
		}
		timing = fmt.Sprintf("%ds left", seconds)
	} else {
		timing = fmt.Sprintf("%ds", int(elapsed.Seconds()))
	}

	if p.count == nil {
		return fmt.Sprintf("%s (%s)", p.prefix, timing)
	}
	return fmt.Sprintf("%s (%s, %d found)", p.prefix, timing, p.count())
}

func (p *ProgressPrinter) print(now time.Time) {
	fmt.Fprintf(p.w, "\r%s   ", p.line(now))
}

// Stop stops the progress display and clears the line.
// Safe to call multiple times and before Start.
func (p *ProgressPrinter) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopChan)
	if p.started.Load() {
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	}
}
