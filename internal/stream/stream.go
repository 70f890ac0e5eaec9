// Package stream defines the frame protocol carrying generated answers to
// clients: zero or more chunk frames followed by exactly one done or error
// frame, in order, never coalesced.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/repochat/repochat/pkg/types"
)

// FrameType discriminates stream frames.
type FrameType string

const (
	FrameChunk FrameType = "chunk"
	FrameDone  FrameType = "done"
	FrameError FrameType = "error"
)

// Frame is one unit of the streaming protocol.
type Frame struct {
	Type    FrameType         `json:"type"`
	Content string            `json:"content,omitempty"`
	Sources []types.SourceRef `json:"sources,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Chunk builds an answer fragment frame.
func Chunk(content string) Frame {
	return Frame{Type: FrameChunk, Content: content}
}

// Done builds the success terminal frame with its citations.
func Done(sources []types.SourceRef) Frame {
	if sources == nil {
		sources = []types.SourceRef{}
	}
	return Frame{Type: FrameDone, Sources: sources}
}

// Error builds the failure terminal frame.
func Error(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}

// Terminal reports whether the frame ends the stream.
func (f Frame) Terminal() bool {
	return f.Type == FrameDone || f.Type == FrameError
}

// ErrTerminated is returned when sending after a terminal frame.
var ErrTerminated = errors.New("stream already terminated")

// Channel carries frames from one producer to one consumer. The channel is
// closed after the terminal frame so range loops over Frames() finish.
type Channel struct {
	ch         chan Frame
	terminated atomic.Bool
	claimed    atomic.Bool
}

// NewChannel creates a channel buffering up to buffer frames.
func NewChannel(buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{ch: make(chan Frame, buffer)}
}

// Send delivers a frame, blocking while the buffer is full. Exactly one
// terminal frame is accepted; anything after it fails with ErrTerminated.
func (c *Channel) Send(ctx context.Context, f Frame) error {
	if f.Terminal() {
		if !c.terminated.CompareAndSwap(false, true) {
			return ErrTerminated
		}
		defer close(c.ch)
	} else if c.terminated.Load() {
		return ErrTerminated
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.ch <- f:
		return nil
	}
}

// Frames claims the consumer side. A second claim fails; every stream has
// exactly one reader.
func (c *Channel) Frames() (<-chan Frame, error) {
	if !c.claimed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: stream already has a consumer", types.ErrStreamBusy)
	}
	return c.ch, nil
}
