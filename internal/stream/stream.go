// Package stream provides a pull-based stream of answer chunks.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Producer generates chunks by calling emit until it is done. emit returns an
// error once the consumer has closed the stream; the producer should stop then.
type Producer func(ctx context.Context, emit func(ctx context.Context, chunk string) error) error

// Stream is a finite, non-restartable sequence of text chunks. The producer is
// started by the first call to Next. Callers must call Close when they stop early.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	produce Producer
	start   sync.Once
	chunks  chan string

	prodErr error
	cur     string
	err     error
	done    bool
	text    strings.Builder
}

// New returns a stream backed by produce. Nothing runs until Next is called.
func New(ctx context.Context, produce Producer) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	return &Stream{
		ctx:     ctx,
		cancel:  cancel,
		produce: produce,
		chunks:  make(chan string),
	}
}

func (s *Stream) run() {
	go func() {
		defer close(s.chunks)
		s.prodErr = s.produce(s.ctx, func(ctx context.Context, chunk string) error {
			if chunk == "" {
				return nil
			}
			select {
			case s.chunks <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-s.ctx.Done():
				return s.ctx.Err()
			}
		})
	}()
}

// Next advances to the next chunk. It returns false at the end of the stream,
// after an error or after Close.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	s.start.Do(s.run)
	chunk, ok := <-s.chunks
	if !ok {
		s.done = true
		s.err = s.prodErr
		s.cancel()
		return false
	}
	s.cur = chunk
	s.text.WriteString(chunk)
	return true
}

// Chunk returns the chunk read by the last successful Next.
func (s *Stream) Chunk() string { return s.cur }

// Text returns everything read so far.
func (s *Stream) Text() string { return s.text.String() }

// Err returns the error that ended the stream, if any. Closing a stream early is not an error.
func (s *Stream) Err() error { return s.err }

// Cancel stops generation. Unlike the other methods it may be called from any
// goroutine; the pending Next then returns false with a cancellation error.
func (s *Stream) Cancel() { s.cancel() }

// Close cancels generation and releases the producer. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.cancel()
	started := true
	s.start.Do(func() { started = false })
	if started {
		for range s.chunks {
		}
	}
	return nil
}

// Collect reads the rest of s and returns the full text.
func Collect(s *Stream) (string, error) {
	defer s.Close()
	for s.Next() {
	}
	if err := s.Err(); err != nil {
		return s.Text(), err
	}
	return s.Text(), nil
}

// FromText returns a stream that yields text as a single chunk.
func FromText(ctx context.Context, text string) *Stream {
	return New(ctx, func(ctx context.Context, emit func(context.Context, string) error) error {
		return emit(ctx, text)
	})
}

// IsCanceled reports whether err only reflects a closed or cancelled stream.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
