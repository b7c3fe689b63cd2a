package agent

import (
	"context"
	"strings"
	"time"

	"aide/internal/agent/ports"
)

// progressWriter streams partial results into the task record so watchers see
// output grow while a step or finalize call is still running.
type progressWriter struct {
	budgets Budgets
	clock   ports.Clock
	sleep   func(ctx context.Context, d time.Duration)
	patch   func(ctx context.Context, result string) error
}

// chunkBoundaries cuts length n into at most MaxChunks cumulative offsets;
// the remainder folds into the last chunk.
func (w *progressWriter) chunkBoundaries(n int) []int {
	if n <= 0 {
		return nil
	}
	size := w.budgets.ChunkSize
	if size <= 0 {
		return []int{n}
	}
	var cuts []int
	for offset := size; offset < n; offset += size {
		cuts = append(cuts, offset)
		if len(cuts) == w.budgets.MaxChunks-1 {
			break
		}
	}
	return append(cuts, n)
}

// Append writes base+addition progressively, ending with the full text.
func (w *progressWriter) Append(ctx context.Context, base, addition string) error {
	cuts := w.chunkBoundaries(len(addition))
	for i, cut := range cuts {
		if i > 0 {
			w.sleep(ctx, w.budgets.ChunkDelay)
		}
		if err := w.patch(ctx, base+addition[:cut]); err != nil {
			return err
		}
	}
	return nil
}

// Replace writes full progressively from its start, discarding whatever the
// task record held before.
func (w *progressWriter) Replace(ctx context.Context, full string) error {
	cuts := w.chunkBoundaries(len(full))
	if len(cuts) == 0 {
		return w.patch(ctx, "")
	}
	for i, cut := range cuts {
		if i > 0 {
			w.sleep(ctx, w.budgets.ChunkDelay)
		}
		if err := w.patch(ctx, full[:cut]); err != nil {
			return err
		}
	}
	return nil
}

// streamFlusher gates flushes of live token output: a flush happens when
// enough new bytes accumulated or enough time passed, whichever first.
// A stream that opens with a JSON object is a wire payload, not prose; it is
// never flushed and only the parsed result lands in the task record.
type streamFlusher struct {
	writer    *progressWriter
	buf       []byte
	flushed   int
	lastFlush time.Time
	decided   bool
	mute      bool
}

func newStreamFlusher(w *progressWriter) *streamFlusher {
	return &streamFlusher{writer: w, lastFlush: w.clock.Now()}
}

// Push appends a delta and flushes when a gate opens. Write errors are
// swallowed; streaming is best-effort and the final flush settles the record.
func (f *streamFlusher) Push(ctx context.Context, delta string) {
	f.buf = append(f.buf, delta...)
	if !f.decided {
		lead := strings.TrimLeft(string(f.buf), " \t\r\n")
		if lead == "" {
			return
		}
		f.decided = true
		f.mute = lead[0] == '{'
	}
	if f.mute {
		return
	}
	pending := len(f.buf) - f.flushed
	now := f.writer.clock.Now()
	if pending < f.writer.budgets.StreamFlushBytes &&
		now.Sub(f.lastFlush) < f.writer.budgets.StreamFlushInterval {
		return
	}
	if err := f.writer.patch(ctx, string(f.buf)); err == nil {
		f.flushed = len(f.buf)
		f.lastFlush = now
	}
}

// Text returns everything pushed so far.
func (f *streamFlusher) Text() string { return string(f.buf) }
