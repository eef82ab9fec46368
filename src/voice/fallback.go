// Package voice wraps speech providers so a low-latency streaming call is tried
// first and a whole-payload REST call answers whenever the stream cannot.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// DefaultStreamTimeout bounds the total wait on a stream.
const DefaultStreamTimeout = 10 * time.Second

// ErrNoPayload is returned when neither path produced anything.
var ErrNoPayload = errors.New("voice: no payload")

// Path names which call produced a result.
type Path string

const (
	PathStream Path = "stream"
	PathREST   Path = "rest"
)

// Chunk is one streamed piece. Done marks the completion signal; Err aborts the stream.
type Chunk[T any] struct {
	Data T
	Done bool
	Err  error
}

// Result is the payload together with the path that produced it.
type Result[T any] struct {
	Payload T
	Path    Path
	Chunks  int
}

// StreamFunc opens a stream. The stream must stop when ctx is cancelled.
type StreamFunc[T any] func(ctx context.Context) (<-chan Chunk[T], error)

// RESTFunc performs the slower whole-payload call.
type RESTFunc[T any] func(ctx context.Context) (T, error)

// Fallback runs a stream under a wall-clock deadline and falls back to REST.
//
// Chunks are collected until the completion signal. When the deadline passes the
// collected chunks are returned, or REST is called if none arrived. Any stream
// error discards partial chunks and calls REST, so the two are never mixed.
type Fallback[T any] struct {
	Timeout time.Duration
	Join    func([]T) T
	Logger  *log.Logger
}

func NewFallback[T any](timeout time.Duration, join func([]T) T) *Fallback[T] {
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	return &Fallback[T]{
		Timeout: timeout,
		Join:    join,
		Logger:  log.New(os.Stderr, "voice: ", log.LstdFlags),
	}
}

// Run executes the state machine. A nil stream goes straight to REST.
func (f *Fallback[T]) Run(ctx context.Context, stream StreamFunc[T], rest RESTFunc[T]) (Result[T], error) {
	if stream != nil {
		res, ok, err := f.collect(ctx, stream)
		if err != nil {
			return Result[T]{}, err
		}
		if ok {
			return res, nil
		}
	}
	if rest == nil {
		return Result[T]{}, ErrNoPayload
	}
	payload, err := rest(ctx)
	if err != nil {
		return Result[T]{}, fmt.Errorf("rest fallback: %w", err)
	}
	return Result[T]{Payload: payload, Path: PathREST}, nil
}

// collect reports ok=false when the caller should fall back. It only returns an
// error when the parent context itself is done.
func (f *Fallback[T]) collect(ctx context.Context, stream StreamFunc[T]) (Result[T], bool, error) {
	streamCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	ch, err := stream(streamCtx)
	if err != nil {
		f.logf("stream open failed: %v", err)
		return Result[T]{}, false, ctx.Err()
	}

	var collected []T
	for {
		select {
		case <-streamCtx.Done():
			if err := ctx.Err(); err != nil {
				return Result[T]{}, false, err
			}
			if len(collected) > 0 {
				f.logf("stream deadline reached, returning %d chunks", len(collected))
				return f.result(collected), true, nil
			}
			f.logf("stream produced nothing within %s", f.Timeout)
			return Result[T]{}, false, nil
		case c, open := <-ch:
			if err := ctx.Err(); err != nil {
				return Result[T]{}, false, err
			}
			if !open {
				c = Chunk[T]{Done: true}
			}
			if c.Err != nil {
				f.logf("stream failed after %d chunks: %v", len(collected), c.Err)
				return Result[T]{}, false, nil
			}
			if c.Done {
				if len(collected) == 0 {
					return Result[T]{}, false, nil
				}
				return f.result(collected), true, nil
			}
			collected = append(collected, c.Data)
		}
	}
}

func (f *Fallback[T]) result(chunks []T) Result[T] {
	var payload T
	if f.Join != nil {
		payload = f.Join(chunks)
	} else {
		payload = chunks[len(chunks)-1]
	}
	return Result[T]{Payload: payload, Path: PathStream, Chunks: len(chunks)}
}

func (f *Fallback[T]) logf(format string, args ...any) {
	if f.Logger != nil {
		f.Logger.Printf(format, args...)
	}
}
