package gridder

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// ProgressBar reports conversion progress on stderr. A conversion walks the
// source rows twice, first to accumulate the output extent and then to bin
// the samples, so the bar counts up to twice the row count and labels the
// half it is in.
type ProgressBar struct {
	rows    int64
	count   atomic.Int64
	start   time.Time
	stop    chan struct{}
	stopped chan struct{}
}

// NewProgressBar starts the stderr refresh loop for a source with the given
// number of rows.
func NewProgressBar(rows int) *ProgressBar {
	pb := &ProgressBar{
		rows:    int64(rows),
		start:   time.Now(),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go pb.loop()
	return pb
}

// Increment records one completed source row. Safe for concurrent use.
func (pb *ProgressBar) Increment() {
	pb.count.Add(1)
}

// Finish stops the refresh loop and completes the stderr line.
func (pb *ProgressBar) Finish() {
	close(pb.stop)
	<-pb.stopped
	fmt.Fprintf(os.Stderr, "\r\033[K%s\n", pb.status())
}

func (pb *ProgressBar) loop() {
	defer close(pb.stopped)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-pb.stop:
			return
		case <-tick.C:
			fmt.Fprintf(os.Stderr, "\r\033[K%s", pb.status())
		}
	}
}

// status renders the current pass, row position and overall completion.
func (pb *ProgressBar) status() string {
	n := pb.count.Load()
	total := 2 * pb.rows
	if n > total {
		n = total
	}
	pass, row := "extent", n
	if n > pb.rows {
		pass, row = "binning", n-pb.rows
	}
	var pct float64
	if total > 0 {
		pct = 100 * float64(n) / float64(total)
	}
	s := fmt.Sprintf("%s pass: row %d/%d, %.0f%% overall", pass, row, pb.rows, pct)
	if n > 0 && n < total {
		elapsed := time.Since(pb.start)
		left := time.Duration(float64(elapsed) * float64(total-n) / float64(n)).Round(time.Second)
		s += fmt.Sprintf(", %s left", left)
	}
	return s
}
