package surface

import (
	"context"
	"testing"
	"time"

	"grain-surface/loopback"
	"grain-surface/params"
	"grain-surface/protocol"
	"grain-surface/transport"
	"grain-surface/windowsync"
)

// loop runs posted input immediately and keeps continuations until fire()
type loop struct {
	active   bool
	resumes  int
	suspends int
	oneShots int
	pending  []func()
}

func (l *loop) Run(ctx context.Context, frame func()) { <-ctx.Done() }

func (l *loop) Post(fn func()) bool {
	fn()
	return true
}

func (l *loop) Active() bool { return l.active }

func (l *loop) Resume() {
	l.resumes++
	l.active = true
}

func (l *loop) Suspend() {
	l.suspends++
	l.active = false
}

func (l *loop) RequestOneShot() {
	if !l.active {
		l.oneShots++
	}
}

func (l *loop) After(d time.Duration, fn func()) func() {
	l.pending = append(l.pending, fn)
	return func() {}
}

func (l *loop) fire() {
	fns := l.pending
	l.pending = nil
	for _, fn := range fns {
		fn()
	}
}

type rig struct {
	t      *testing.T
	link   *transport.Link
	engine *loopback.Engine
	loop   *loop
	s      *Surface
}

// newRig wires a surface to a loopback engine running at 5120 Hz, so the
// default 100 ms grain is a 512-sample window
func newRig(t *testing.T) *rig {
	t.Helper()
	link := transport.NewLink()
	content := []loopback.Content{{Name: "first", Frames: 44100}, {Name: "second", Frames: 88200}}
	engine := loopback.New(link, content, loopback.Options{SampleRate: 5120, LoadSteps: 1, Chunk: protocol.WindowCapacity})
	l := &loop{active: true}
	s, err := New(link, Options{Content: []string{"first", "second"}, Loop: l})
	if err != nil {
		t.Fatal(err)
	}
	s.store.PushAll()
	return &rig{t: t, link: link, engine: engine, loop: l, s: s}
}

// cycle runs engine and surface side by side
func (r *rig) cycle(n int) {
	for i := 0; i < n; i++ {
		r.engine.Step()
		r.s.Refresh()
	}
}

// settle runs until the surface suspends
func (r *rig) settle() Frame {
	r.t.Helper()
	for i := 0; i < 10; i++ {
		r.cycle(1)
		r.loop.fire()
		r.s.Refresh()
		if r.s.sync.State() == windowsync.Suspended {
			return r.frame()
		}
	}
	r.t.Fatalf("never suspended, state = %s", r.s.sync.State())
	return Frame{}
}

func (r *rig) frame() Frame {
	r.t.Helper()
	select {
	case f := <-r.s.Frames():
		return f
	default:
		r.t.Fatal("no frame emitted")
		return Frame{}
	}
}

func (r *rig) pushed(ch protocol.Channel) []float64 {
	r.t.Helper()
	p, ok := r.engine.Last(ch)
	if !ok {
		r.t.Fatalf("nothing pushed on %s", ch)
	}
	return p.Values
}

func TestStartupBindsAndRendersThenSuspends(t *testing.T) {
	r := newRig(t)

	r.cycle(1)
	if _, ok := r.s.neg.Bound(); ok {
		t.Fatal("bound before the engine reported a length")
	}
	r.cycle(1)
	if n, ok := r.s.neg.Bound(); !ok || n != 44100 {
		t.Fatalf("bound = %d, %v", n, ok)
	}
	if got := r.pushed(protocol.ChSourcePosition); got[0] != 22050 {
		t.Fatalf("default position push = %v, want 22050", got)
	}

	f := r.settle()
	if !f.HasWindow || f.Window.Length != 512 || len(f.Window.Samples) != 512 {
		t.Fatalf("window = %d points", f.Window.Length)
	}
	if f.State != windowsync.Suspended || f.Active {
		t.Fatalf("frame state = %s active=%v", f.State, f.Active)
	}
	if f.Bound != 44100 || f.Name != "first" {
		t.Fatalf("frame bound=%d name=%q", f.Bound, f.Name)
	}
	pos, _ := f.Field(params.SourcePosition)
	if pos.Max != 44100 || pos.Value != 22050 {
		t.Fatalf("position field = %+v", pos)
	}
}

func TestInitialPushReachesEngine(t *testing.T) {
	r := newRig(t)
	cases := map[protocol.Channel][]float64{
		protocol.ChGrainLength: {100},
		protocol.ChGrainRate:   {1},
		protocol.ChOutputGain:  {0.5},
		protocol.ChWindowShape: {0, 0.5},
		protocol.ChLowpass:     {20000, 0.707},
		protocol.ChHighpass:    {20, 0.707},
	}
	for ch, want := range cases {
		got := r.pushed(ch)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s = %v, want %v", ch, got, want)
			}
		}
	}
}

func TestContentSwitchRenegotiates(t *testing.T) {
	r := newRig(t)
	r.settle()

	r.s.SwitchContent(1)
	if !r.loop.active {
		t.Fatal("content switch did not resume the loop")
	}
	if got := r.pushed(protocol.ChContentSelect); got[0] != 1 {
		t.Fatalf("content push = %v", got)
	}
	if _, ok := r.s.neg.Bound(); ok {
		t.Fatal("range still bound after switch")
	}
	if f := r.s.store.Field(params.SourcePosition); f.Max != 0 {
		t.Fatalf("position max = %v while unbound, want 0", f.Max)
	}

	// Operator input before the new length binds stays inside the empty range.
	r.s.Nudge(params.SourcePosition, 100)
	if got := r.pushed(protocol.ChSourcePosition); got[0] != 0 {
		t.Fatalf("position push while unbound = %v, want 0", got)
	}

	r.s.Refresh()
	if _, ok := r.s.neg.Bound(); ok {
		t.Fatal("bound on the previous content's length")
	}

	r.cycle(2)
	if n, _ := r.s.neg.Bound(); n != 88200 {
		t.Fatalf("bound = %d, want 88200", n)
	}
	if got := r.pushed(protocol.ChSourcePosition); got[0] != 44100 {
		t.Fatalf("position = %v", got)
	}
	if r.s.neg.Binds() != 2 {
		t.Fatalf("binds = %d", r.s.neg.Binds())
	}

	r.s.Refresh()
	if r.s.sync.State() != windowsync.Suspended {
		t.Fatalf("state = %s", r.s.sync.State())
	}
	if f := r.frame(); f.Name != "second" {
		t.Fatalf("content name = %q", f.Name)
	}
}

func TestReconnectRepushesAndRebinds(t *testing.T) {
	r := newRig(t)
	r.settle()
	r.s.Set(params.OutputGain, 0.9)
	r.s.Refresh()
	r.s.Refresh()

	r.s.Reconnect()
	if !r.loop.active {
		t.Fatal("reconnect did not resume the loop")
	}
	if _, ok := r.s.neg.Bound(); ok {
		t.Fatal("range still bound after reconnect")
	}
	if got := r.pushed(protocol.ChOutputGain); got[0] != 0.9 {
		t.Fatalf("gain push = %v", got)
	}

	r.s.Refresh()
	r.cycle(2)
	if n, _ := r.s.neg.Bound(); n != 44100 {
		t.Fatalf("bound = %d, want 44100", n)
	}
	if r.s.neg.Binds() != 2 {
		t.Fatalf("binds = %d", r.s.neg.Binds())
	}
	if f := r.settle(); f.Window.Length != 512 {
		t.Fatalf("window length = %d", f.Window.Length)
	}
}

func TestSwitchContentClampsIndex(t *testing.T) {
	r := newRig(t)
	r.s.SwitchContent(9)
	if got := r.pushed(protocol.ChContentSelect); got[0] != 1 {
		t.Fatalf("content push = %v, want clamped 1", got)
	}
}

func TestPlainChangeWhileSuspendedDrawsOnce(t *testing.T) {
	r := newRig(t)
	r.settle()

	r.s.Set(params.OutputGain, 2)
	if r.loop.active || r.loop.oneShots != 1 {
		t.Fatalf("active=%v oneShots=%d", r.loop.active, r.loop.oneShots)
	}
	if got := r.pushed(protocol.ChOutputGain); got[0] != 1 {
		t.Fatalf("gain push = %v, want clamped 1", got)
	}
	r.s.Refresh()
	f := r.frame()
	if gain, _ := f.Field(params.OutputGain); gain.Value != 1 {
		t.Fatalf("gain field = %v", gain.Value)
	}
	if f.State != windowsync.Suspended {
		t.Fatalf("state = %s", f.State)
	}
}

func TestShapeChangeResumesAndRendersNewWindow(t *testing.T) {
	r := newRig(t)
	first := r.settle()

	r.s.SelectShape(protocol.ShapeTrapezoidal)
	if !r.loop.active {
		t.Fatal("shape change did not resume")
	}
	if got := r.pushed(protocol.ChWindowShape); got[0] != 3 || got[1] != 5 {
		t.Fatalf("shape push = %v, want [3 5]", got)
	}

	f := r.settle()
	if f.Window.Version <= first.Window.Version {
		t.Fatal("no new render after the shape change")
	}
	want := loopback.Window(protocol.ShapeTrapezoidal, 512, 5)
	for i := range want {
		if f.Window.Samples[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, f.Window.Samples[i], want[i])
		}
	}
}

func TestModifierWhileSuspendedRendersOnce(t *testing.T) {
	r := newRig(t)
	before := r.settle()
	resumes := r.loop.resumes

	r.s.SetModifier(0.2)
	if r.loop.active || r.loop.resumes != resumes {
		t.Fatal("modifier change resumed continuous frames")
	}

	r.engine.Step()
	r.loop.fire()
	if r.s.sync.State() != windowsync.Suspended {
		t.Fatalf("state = %s", r.s.sync.State())
	}
	r.s.Refresh()
	f := r.frame()
	if f.Window.Version != before.Window.Version+1 {
		t.Fatalf("version = %d, want exactly one render", f.Window.Version)
	}
	if mod, _ := f.Field(params.WindowModifier); mod.Value != 0.2 {
		t.Fatalf("modifier = %v", mod.Value)
	}
}

func TestGrainLengthRerendersWindow(t *testing.T) {
	r := newRig(t)
	r.settle()

	r.s.Set(params.GrainLength, 50)
	r.engine.Step()
	r.loop.fire()
	r.s.Refresh()
	f := r.frame()
	if f.Window.Length != 256 {
		t.Fatalf("window length = %d, want 256", f.Window.Length)
	}
}

func TestNudgeAndNorm(t *testing.T) {
	r := newRig(t)
	r.s.Nudge(params.GrainRate, 3)
	if v, _ := r.s.store.Get(params.GrainRate); v != 4 {
		t.Fatalf("rate = %v", v)
	}
	r.s.SetNorm(params.GrainLength, 0.5)
	if got := r.pushed(protocol.ChGrainLength); got[0] != 250 {
		t.Fatalf("grain length push = %v", got)
	}
	r.s.Nudge("no.such", 1)
}

func TestApplySkipsPositionAndContent(t *testing.T) {
	r := newRig(t)
	r.cycle(2)
	r.s.Apply(map[string]float64{
		params.GrainScatter:   40,
		params.LowpassCutoff:  800,
		params.SourcePosition: 1,
		params.ContentIndex:   1,
		params.WindowModifier: 0.3,
		"unknown.field":       7,
	})
	vals := r.s.Values()
	if vals[params.GrainScatter] != 40 || vals[params.LowpassCutoff] != 800 || vals[params.WindowModifier] != 0.3 {
		t.Fatalf("values = %v", vals)
	}
	if vals[params.SourcePosition] != 22050 || vals[params.ContentIndex] != 0 {
		t.Fatalf("position/content changed: %v", vals)
	}
}

func TestFramesKeepOnlyLatest(t *testing.T) {
	r := newRig(t)
	r.s.Refresh()
	r.s.Refresh()
	r.s.Refresh()
	if f := r.frame(); f.Seq != 3 {
		t.Fatalf("seq = %d, want latest 3", f.Seq)
	}
	select {
	case <-r.s.Frames():
		t.Fatal("stale frame still queued")
	default:
	}
}

func TestNeverSuspendsWhileUnbound(t *testing.T) {
	link := transport.NewLink()
	l := &loop{active: true}
	s, err := New(link, Options{Loop: l})
	if err != nil {
		t.Fatal(err)
	}
	link.Publish(protocol.ChWindowSamples, protocol.Floats(make([]float64, 64)...))
	link.Publish(protocol.ChWindowChanged, protocol.Ints(1, 64))
	s.Refresh()
	l.fire()
	for i := 0; i < 5; i++ {
		s.Refresh()
	}
	if !l.active || l.suspends != 0 {
		t.Fatal("suspended before the content range was bound")
	}
}

func TestRunWithScheduler(t *testing.T) {
	link := transport.NewLink()
	s, err := New(link, Options{FPS: 200, Stabilization: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case f := <-s.Frames():
		if len(f.Fields) == 0 {
			t.Fatal("frame without fields")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from the running loop")
	}
	if smp, ok := link.Poll(protocol.ChGrainLength); !ok || smp.Payload.Values[0] != 100 {
		t.Fatal("initial push missing")
	}
	cancel()
	<-done
}
