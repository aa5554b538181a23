package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/btharness/internal/harness"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows the running test with its elapsed time and prints one
// line per finished test.
//
// Usage:
//
//	p := NewProgressPrinter(w)
//	p.Start()
//	defer p.Stop()
//	runner.Progress = p.Callback()
//
// The caller must call Stop to terminate the internal goroutine.
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	out       io.Writer
	mu        sync.Mutex   // serializes writes to out
	current   atomic.Value // stores string - name of the running test
	startedAt atomic.Int64 // unix nanoseconds the running test started at
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{} // closed when goroutine exits
	started   atomic.Bool   // ensures Start is called at most once
}

// NewProgressPrinter creates a progress printer writing to out.
func NewProgressPrinter(out io.Writer) *ProgressPrinter {
	p := &ProgressPrinter{out: out}
	p.current.Store("")
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				name := p.current.Load().(string)
				if name == "" {
					continue
				}
				elapsed := time.Since(time.Unix(0, p.startedAt.Load()))
				p.printf("\r%s (running %ds)   ", name, int(elapsed.Seconds()))
			}
		}
	}()
}

func (p *ProgressPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Callback returns the function to install as harness.Runner.Progress.
// This function is safe to call from multiple goroutines.
func (p *ProgressPrinter) Callback() func(name string, status harness.Status) {
	return func(name string, status harness.Status) {
		if status == harness.StatusRunning {
			p.startedAt.Store(time.Now().UnixNano())
			p.current.Store(name)
			p.printf("\r%s (running...)   ", name)
			return
		}
		p.current.Store("")
		p.printf("%s%-5s %s\n", clearLineSequence, strings.ToUpper(string(status)), name)
	}
}

// Stop stops the progress display and clears the line.
// This function is safe to call multiple times and from multiple goroutines.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return // Already stopped
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	if p.current.Load().(string) != "" {
		p.printf("%s", clearLineSequence)
	}
}
