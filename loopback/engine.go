// Package loopback is an in-process stand-in for the synthesis engine. It
// speaks the channel protocol over a transport.Link: it reports content
// lengths after a load delay and rewrites its window buffer in chunks, the
// way the real engine does, so the surface sees write-in-progress buffers.
package loopback

import (
	"context"
	"time"

	"grain-surface/debug"
	"grain-surface/protocol"
	"grain-surface/transport"
)

const (
	DefaultSampleRate = 44100
	DefaultChunk      = 2048
)

// Options tunes the stand-in engine
type Options struct {
	SampleRate int
	LoadSteps  int // steps between a content selection and its length report
	Chunk      int // window samples written per step
}

// Engine consumes surface→engine channels and publishes engine→surface ones.
// All methods must be called from one goroutine; Run does that for you.
type Engine struct {
	link    *transport.Link
	opts    Options
	content []Content

	seen     [protocol.NumChannels]uint64
	selected int
	loading  int // steps left, -1 when the length is published

	shape    protocol.Shape
	modifier float64 // wire value
	grainMs  int

	buffer  []float64 // fixed capacity, only a prefix is valid
	target  []float64 // window being written
	written int
	windows int
}

// New creates an engine that starts loading content 0 and writing its
// default window
func New(link *transport.Link, content []Content, opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Chunk <= 0 {
		opts.Chunk = DefaultChunk
	}
	if opts.LoadSteps < 0 {
		opts.LoadSteps = 0
	}
	e := &Engine{
		link:     link,
		opts:     opts,
		content:  content,
		loading:  opts.LoadSteps,
		shape:    protocol.ShapeHann,
		modifier: 0.5,
		grainMs:  100,
		buffer:   make([]float64, protocol.WindowCapacity),
	}
	e.link.Publish(protocol.ChContentLength, protocol.Ints(0))
	e.regenerate()
	return e
}

// Run steps the engine every interval until ctx is cancelled (blocking - run
// in goroutine)
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Step()
		}
	}
}

// Step runs one engine block: consume controls, advance loading, write the
// next window chunk
func (e *Engine) Step() {
	e.poll()
	e.load()
	e.write()
}

// Selected returns the active content index
func (e *Engine) Selected() int {
	return e.selected
}

// Writing reports whether a window rewrite is in progress
func (e *Engine) Writing() bool {
	return e.target != nil
}

// Windows returns how many windows have been fully written
func (e *Engine) Windows() int {
	return e.windows
}

// Last returns the latest value the surface pushed on ch
func (e *Engine) Last(ch protocol.Channel) (protocol.Payload, bool) {
	smp, ok := e.link.Poll(ch)
	return smp.Payload, ok
}

func (e *Engine) poll() {
	if p, ok := e.fresh(protocol.ChContentSelect); ok {
		idx, _ := p.Int(0)
		e.selectContent(idx)
	}

	regen := false
	if p, ok := e.fresh(protocol.ChWindowShape); ok {
		code, _ := p.Int(0)
		e.shape = protocol.Shape(code)
		e.modifier, _ = p.Float(1)
		regen = true
	}
	if p, ok := e.fresh(protocol.ChGrainLength); ok {
		ms, _ := p.Int(0)
		if ms != e.grainMs {
			e.grainMs = ms
			regen = true
		}
	}
	if regen {
		e.regenerate()
	}
}

// fresh returns a pushed value not consumed yet
func (e *Engine) fresh(ch protocol.Channel) (protocol.Payload, bool) {
	smp, ok := e.link.Poll(ch)
	if !ok || smp.Seq <= e.seen[ch] {
		return protocol.Payload{}, false
	}
	e.seen[ch] = smp.Seq
	return smp.Payload, true
}

func (e *Engine) selectContent(idx int) {
	if idx < 0 || idx >= len(e.content) {
		debug.Log("engine", "content index %d out of range (%d items)", idx, len(e.content))
		return
	}
	e.selected = idx
	e.loading = e.opts.LoadSteps
	e.link.Publish(protocol.ChContentLength, protocol.Ints(0))
	debug.Log("engine", "loading %q", e.content[idx].Name)
}

func (e *Engine) load() {
	if e.loading < 0 {
		return
	}
	if e.loading > 0 {
		e.loading--
		return
	}
	e.loading = -1
	frames := 0
	if e.selected < len(e.content) {
		frames = e.content[e.selected].Frames
	}
	e.link.Publish(protocol.ChContentLength, protocol.Ints(frames))
	debug.Log("engine", "content %d ready, %d frames", e.selected, frames)
}

// regenerate starts writing a new window and raises the change flag
func (e *Engine) regenerate() {
	n := e.grainMs * e.opts.SampleRate / 1000
	if n > protocol.WindowCapacity {
		n = protocol.WindowCapacity
	}
	if n < 2 {
		debug.Log("engine", "grain of %d ms too short for a window", e.grainMs)
		return
	}
	e.target = Window(e.shape, n, e.modifier)
	e.written = 0
	e.link.Publish(protocol.ChWindowChanged, protocol.Ints(1, n))
	debug.Log("engine", "window %s mod=%.2f length=%d", e.shape, e.modifier, n)
}

func (e *Engine) write() {
	if e.target == nil {
		return
	}
	end := e.written + e.opts.Chunk
	if end > len(e.target) {
		end = len(e.target)
	}
	copy(e.buffer[e.written:end], e.target[e.written:end])
	e.written = end
	e.link.Publish(protocol.ChWindowSamples, protocol.Floats(e.buffer...))

	if e.written == len(e.target) {
		e.link.Publish(protocol.ChWindowChanged, protocol.Ints(0, len(e.target)))
		e.target = nil
		e.windows++
	}
}
