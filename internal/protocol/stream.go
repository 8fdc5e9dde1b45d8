package protocol

import (
	"context"
	"errors"
	"io"
	"iter"
)

const readChunk = 4096

// Stream returns the events decoded from r as a lazy, single-use sequence.
// Events are yielded in arrival order as soon as their line completes. A read
// failure or context cancellation is yielded once as the last element. Stop
// iterating to abandon the stream; closing r is left to the caller.
func Stream(ctx context.Context, r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		dec := NewDecoder()
		buf := make([]byte, readChunk)
		for {
			if err := ctx.Err(); err != nil {
				yield(Event{}, err)
				return
			}

			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range dec.Write(buf[:n]) {
					if !yield(ev, nil) {
						return
					}
				}
			}
			if err == nil {
				continue
			}

			if errors.Is(err, io.EOF) {
				for _, ev := range dec.Flush() {
					if !yield(ev, nil) {
						return
					}
				}
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			yield(Event{}, err)
			return
		}
	}
}
