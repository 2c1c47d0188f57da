package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"grain-surface/midi"
	"grain-surface/params"
	"grain-surface/preset"
	"grain-surface/protocol"
	"grain-surface/surface"
	"grain-surface/theme"
	"grain-surface/transport"
)

// loop runs posted input immediately and never ticks on its own
type loop struct{ active bool }

func (l *loop) Run(ctx context.Context, frame func()) { <-ctx.Done() }
func (l *loop) Post(fn func()) bool                  { fn(); return true }
func (l *loop) Active() bool                         { return l.active }
func (l *loop) Resume()                              { l.active = true }
func (l *loop) Suspend()                             { l.active = false }
func (l *loop) RequestOneShot()                      {}
func (l *loop) After(d time.Duration, fn func()) func() {
	return func() {}
}

type fixture struct {
	t    *testing.T
	link *transport.Link
	s    *surface.Surface
	m    Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	link := transport.NewLink()
	s, err := surface.New(link, surface.Options{
		Content: []string{"first", "second"},
		Loop:    &loop{active: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{t: t, link: link, s: s}
	f.m = NewModel(s, nil, theme.New(nil), midi.NewMapper(nil), 44100)
	f.refresh()
	return f
}

// refresh runs a surface frame and hands it to the model
func (f *fixture) refresh() {
	f.t.Helper()
	f.s.Refresh()
	f.update(FrameMsg(<-f.s.Frames()))
}

func (f *fixture) update(msg tea.Msg) tea.Cmd {
	next, cmd := f.m.Update(msg)
	f.m = next.(Model)
	return cmd
}

func (f *fixture) key(k string) tea.Cmd {
	switch k {
	case "enter":
		return f.update(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		return f.update(tea.KeyMsg{Type: tea.KeyEsc})
	}
	return f.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

func (f *fixture) value(name string) float64 {
	return f.s.Values()[name]
}

func TestKeysNudgeFocusedField(t *testing.T) {
	f := newFixture(t)

	f.key("j")
	if f.m.focus != 1 {
		t.Fatalf("focus = %d", f.m.focus)
	}
	f.key("l")
	if got := f.value(params.GrainLength); got != 101 {
		t.Fatalf("grain length = %v, want 101", got)
	}
	f.key("H")
	if got := f.value(params.GrainLength); got != 91 {
		t.Fatalf("grain length = %v, want 91", got)
	}

	f.key("k")
	f.key("k")
	if f.m.focus != 0 {
		t.Fatalf("focus = %d, want clamped to 0", f.m.focus)
	}
}

func TestShapeAndModifierKeys(t *testing.T) {
	f := newFixture(t)

	f.key("3")
	if got := f.value(params.WindowShape); got != float64(protocol.ShapeGaussian) {
		t.Fatalf("shape = %v", got)
	}
	f.key("]")
	if got := f.value(params.WindowModifier); got < 0.549 || got > 0.551 {
		t.Fatalf("modifier = %v, want 0.55", got)
	}
}

func TestContentKeys(t *testing.T) {
	f := newFixture(t)

	f.key("n")
	if got := f.value(params.ContentIndex); got != 1 {
		t.Fatalf("content = %v", got)
	}
	f.refresh()
	before, _ := f.link.Poll(protocol.ChContentSelect)
	f.key("n")
	if got := f.value(params.ContentIndex); got != 1 {
		t.Fatalf("content = %v, want to stay on 1", got)
	}
	if after, _ := f.link.Poll(protocol.ChContentSelect); after.Seq != before.Seq {
		t.Fatal("next on the last content selected it again")
	}
	f.key("p")
	if got := f.value(params.ContentIndex); got != 0 {
		t.Fatalf("content = %v", got)
	}
}

func TestSavePresetFromPrompt(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	f := newFixture(t)
	f.s.Set(params.OutputGain, 0.25)
	f.refresh()

	f.key("s")
	if f.m.mode != promptSave {
		t.Fatal("save prompt not open")
	}
	f.key("wash")
	cmd := f.key("enter")
	if cmd == nil {
		t.Fatal("enter produced no save command")
	}
	f.update(cmd())
	if f.m.status != "saved wash" {
		t.Fatalf("status = %q", f.m.status)
	}

	p, err := preset.Load("wash")
	if err != nil {
		t.Fatal(err)
	}
	if p.Values[params.OutputGain] != 0.25 {
		t.Fatalf("saved gain = %v", p.Values[params.OutputGain])
	}
}

func TestLoadPresetSkipsUnknown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := preset.Save("loud", map[string]float64{params.OutputGain: 0.8, "reverb.mix": 1}); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t)

	f.key("o")
	f.key("loud")
	cmd := f.key("enter")
	f.update(cmd())

	if got := f.value(params.OutputGain); got != 0.8 {
		t.Fatalf("gain = %v", got)
	}
	if !strings.Contains(f.m.status, "skipped") || !strings.Contains(f.m.status, "reverb.mix") {
		t.Fatalf("status = %q", f.m.status)
	}
}

func TestPromptEscapeCancels(t *testing.T) {
	f := newFixture(t)
	f.key("s")
	f.key("x")
	if cmd := f.key("esc"); cmd != nil {
		t.Fatal("escape should not run a command")
	}
	if f.m.mode != promptNone {
		t.Fatal("prompt still open")
	}
	// Keys go back to the fields once the prompt is closed.
	f.key("j")
	if f.m.focus != 1 {
		t.Fatalf("focus = %d", f.m.focus)
	}
}

func TestEngineReconnectRepushes(t *testing.T) {
	f := newFixture(t)
	before, _ := f.link.Poll(protocol.ChOutputGain)

	f.m.handleDevice(midi.DeviceEvent{Type: midi.EngineConnected, ID: "Grain Engine"})
	if f.m.engine != "Grain Engine" {
		t.Fatalf("engine = %q", f.m.engine)
	}
	after, ok := f.link.Poll(protocol.ChOutputGain)
	if !ok || after.Seq <= before.Seq {
		t.Fatal("reconnect did not push the parameters again")
	}

	f.m.handleDevice(midi.DeviceEvent{Type: midi.EngineDisconnected, ID: "Grain Engine"})
	if f.m.engine != "" {
		t.Fatalf("engine = %q after disconnect", f.m.engine)
	}
}

func TestDeviceListenerStopsWhenClosed(t *testing.T) {
	f := newFixture(t)
	f.m.engine = "Grain Engine"
	f.m.controllers["knobs"] = true

	events := make(chan midi.DeviceEvent)
	close(events)
	msg := ListenForDevices(events)()
	if _, ok := msg.(DeviceEventMsg); ok {
		t.Fatal("closed event channel read as a device event")
	}
	if cmd := f.update(msg); cmd != nil {
		t.Fatal("listener re-armed after the device manager stopped")
	}
	if f.m.engine != "" || len(f.m.controllers) != 0 {
		t.Fatalf("engine=%q controllers=%v after stop", f.m.engine, f.m.controllers)
	}
}

func TestView(t *testing.T) {
	f := newFixture(t)
	view := f.m.View()
	for _, want := range []string{"grain-surface", "Grain length", "first (loading)", "no window yet", "filter response"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	f.key("?")
	if !strings.Contains(f.m.View(), "Hann, Tukey, Gaussian, Trapezoidal") {
		t.Error("help not shown")
	}

	empty := NewModel(f.s, nil, theme.New(nil), nil, 44100)
	if !strings.Contains(empty.View(), "waiting for the first frame") {
		t.Error("placeholder missing before the first frame")
	}
}
