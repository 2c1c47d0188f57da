// Package surface ties the parameter store, range negotiation and window sync
// to one frame loop. Every state change runs on that loop; other goroutines
// (TUI, MIDI listeners) hand operator input over through the exported methods.
package surface

import (
	"context"
	"time"

	"grain-surface/debug"
	"grain-surface/negotiate"
	"grain-surface/params"
	"grain-surface/protocol"
	"grain-surface/scheduler"
	"grain-surface/transport"
	"grain-surface/windowsync"
)

// Loop is the frame driver the surface runs on
type Loop interface {
	windowsync.Driver
	Run(ctx context.Context, frame func())
	Post(fn func()) bool
	Active() bool
}

// Options configures a surface
type Options struct {
	FPS           int
	Stabilization time.Duration
	Content       []string // content names, by index
	Loop          Loop     // nil uses a scheduler at FPS
}

// FieldView is one parameter as it stood when a frame was drawn
type FieldView struct {
	Name  string
	Label string
	Value float64
	Text  string
	Norm  float64
	Min   float64
	Max   float64
}

// Frame is an immutable snapshot of everything worth drawing
type Frame struct {
	Seq       uint64
	Fields    []FieldView
	Window    windowsync.Snapshot
	HasWindow bool
	State     windowsync.State
	Bound     int // content length, 0 while negotiating
	Content   int
	Contents  int // how many content items can be selected
	Name      string
	Active    bool
}

// Field returns the named field view
func (f Frame) Field(name string) (FieldView, bool) {
	for _, fv := range f.Fields {
		if fv.Name == name {
			return fv, true
		}
	}
	return FieldView{}, false
}

// Surface is the control surface session
type Surface struct {
	store   *params.Store
	neg     *negotiate.Negotiator
	sync    *windowsync.Controller
	loop    Loop
	content []string

	frames chan Frame
	seq    uint64
	inputs int // operator changes since the last frame
}

// New builds a surface on tr with the standard parameter set
func New(tr transport.Transport, opts Options) (*Surface, error) {
	store, err := params.NewStore(tr, params.Defaults(len(opts.Content))...)
	if err != nil {
		return nil, err
	}
	loop := opts.Loop
	if loop == nil {
		loop = scheduler.New(opts.FPS)
	}
	s := &Surface{
		store:   store,
		loop:    loop,
		content: opts.Content,
		frames:  make(chan Frame, 1),
	}
	s.sync = windowsync.New(tr, loop, opts.Stabilization)
	s.neg = negotiate.New(tr, store, s.sync)
	return s, nil
}

// Run pushes every parameter once, then drives frames until ctx is done
// (blocking - run in goroutine)
func (s *Surface) Run(ctx context.Context) {
	if !s.loop.Post(s.store.PushAll) {
		return
	}
	s.loop.Run(ctx, s.Refresh)
}

// Frames delivers the latest frame; stale frames are dropped
func (s *Surface) Frames() <-chan Frame {
	return s.frames
}

// Refresh runs one frame. The loop calls it; tests may call it directly.
func (s *Surface) Refresh() {
	s.neg.Tick()
	s.sync.Tick()

	_, bound := s.neg.Bound()
	s.sync.AfterFrame(s.inputs > 0 || !bound)
	s.inputs = 0
	s.emit()
}

// Set changes a parameter by name
func (s *Surface) Set(name string, v float64) {
	s.post(func() { s.set(name, v) })
}

// Nudge moves a parameter by steps increments
func (s *Surface) Nudge(name string, steps int) {
	s.post(func() {
		if f := s.store.Field(name); f != nil {
			s.set(name, f.Value()+float64(steps)*f.Step)
		}
	})
}

// SetNorm sets a parameter from a 0-1 position in its range
func (s *Surface) SetNorm(name string, norm float64) {
	s.post(func() {
		if f := s.store.Field(name); f != nil {
			s.set(name, f.Min+norm*(f.Max-f.Min))
		}
	})
}

// SelectShape switches the window shape
func (s *Surface) SelectShape(shape protocol.Shape) {
	s.Set(params.WindowShape, float64(shape))
}

// SetModifier changes the window modifier
func (s *Surface) SetModifier(v float64) {
	s.Set(params.WindowModifier, v)
}

// SwitchContent selects another source and repeats the range handshake
func (s *Surface) SwitchContent(index int) {
	s.Set(params.ContentIndex, float64(index))
}

// Apply sets several parameters at once, e.g. from a preset. Content and
// position are left alone: the position is only meaningful for the content
// it was bound to.
func (s *Surface) Apply(values map[string]float64) {
	s.post(func() {
		for _, f := range s.store.Fields() {
			v, ok := values[f.Name]
			if !ok || f.Name == params.SourcePosition || f.Name == params.ContentIndex {
				continue
			}
			s.set(f.Name, v)
		}
	})
}

// Reconnect pushes every parameter again to an engine that has come back,
// which may have restarted, and repeats the range handshake.
func (s *Surface) Reconnect() {
	s.post(func() {
		s.neg.Reset()
		s.store.PushAll()
		s.sync.Reshape()
	})
}

// Values snapshots every parameter value. Only call it from the loop (e.g.
// inside Do) or before Run.
func (s *Surface) Values() map[string]float64 {
	return s.store.Values()
}

// Do runs fn on the loop
func (s *Surface) Do(fn func()) bool {
	return s.loop.Post(fn)
}

func (s *Surface) post(fn func()) {
	if !s.loop.Post(func() {
		s.inputs++
		fn()
		if !s.loop.Active() {
			s.loop.RequestOneShot()
		}
	}) {
		debug.Log("surface", "input dropped, loop stopped")
	}
}

// set routes a change to whichever component owns its side effects
func (s *Surface) set(name string, v float64) {
	switch name {
	case params.WindowShape:
		s.sync.SetShape(s.store, v)
	case params.WindowModifier:
		s.sync.SetModifier(s.store, v)
	case params.ContentIndex:
		s.switchContent(v)
	case params.GrainLength:
		if s.setStore(name, v) {
			s.sync.Reshape()
		}
	default:
		s.setStore(name, v)
	}
}

func (s *Surface) setStore(name string, v float64) bool {
	if _, err := s.store.Set(name, v); err != nil {
		debug.Log("surface", "set: %v", err)
		return false
	}
	return true
}

func (s *Surface) switchContent(v float64) {
	// Reset first so any length the engine reports after the push is fresh.
	s.neg.Reset()
	idx, _ := s.store.Set(params.ContentIndex, v)
	debug.Log("surface", "switch to content %d %q", int(idx), s.name(int(idx)))
}

func (s *Surface) name(idx int) string {
	if idx >= 0 && idx < len(s.content) {
		return s.content[idx]
	}
	return ""
}

func (s *Surface) emit() {
	s.seq++
	fields := s.store.Fields()
	f := Frame{
		Seq:      s.seq,
		Fields:   make([]FieldView, len(fields)),
		State:    s.sync.State(),
		Active:   s.loop.Active(),
		Contents: len(s.content),
	}
	for i, fd := range fields {
		f.Fields[i] = FieldView{
			Name:  fd.Name,
			Label: fd.Label,
			Value: fd.Value(),
			Text:  fd.Format(),
			Norm:  fd.Norm(),
			Min:   fd.Min,
			Max:   fd.Max,
		}
	}
	f.Window, f.HasWindow = s.sync.Snapshot()
	f.Bound, _ = s.neg.Bound()
	if v, ok := s.store.Get(params.ContentIndex); ok {
		f.Content = int(v)
		f.Name = s.name(f.Content)
	}

	// Latest wins: drop an undelivered frame rather than block the loop.
	select {
	case s.frames <- f:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- f:
		default:
		}
	}
}
