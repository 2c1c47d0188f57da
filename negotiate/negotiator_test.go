package negotiate

import (
	"testing"

	"grain-surface/params"
	"grain-surface/protocol"
	"grain-surface/transport"
)

type loop struct{ resumes int }

func (l *loop) Resume() { l.resumes++ }

func setup(t *testing.T) (*Negotiator, *transport.Link, *params.Store, *loop) {
	t.Helper()
	link := transport.NewLink()
	store, err := params.NewStore(link, params.Defaults(2)...)
	if err != nil {
		t.Fatal(err)
	}
	l := &loop{}
	return New(link, store, l), link, store, l
}

func positionPush(t *testing.T, link *transport.Link) (int, uint64, bool) {
	t.Helper()
	smp, ok := link.Poll(protocol.ChSourcePosition)
	if !ok {
		return 0, 0, false
	}
	v, _ := smp.Payload.Int(0)
	return v, smp.Seq, true
}

func TestNotBoundBeforePublish(t *testing.T) {
	n, _, _, _ := setup(t)
	for i := 0; i < 3; i++ {
		if n.Tick() {
			t.Fatal("bound without a published length")
		}
	}
	if _, ok := n.Bound(); ok {
		t.Fatal("Bound() reports a length")
	}
}

func TestNeverBindsNonPositive(t *testing.T) {
	n, link, _, _ := setup(t)
	for _, v := range []int{0, -1, -44100} {
		link.Publish(protocol.ChContentLength, protocol.Ints(v))
		if n.Tick() {
			t.Fatalf("bound on length %d", v)
		}
	}
	if _, _, ok := positionPush(t, link); ok {
		t.Fatal("default pushed without a bind")
	}
}

func TestBindsOnceOnFirstPositive(t *testing.T) {
	n, link, store, _ := setup(t)
	link.Publish(protocol.ChContentLength, protocol.Ints(0))
	n.Tick()
	link.Publish(protocol.ChContentLength, protocol.Ints(44100))
	if !n.Tick() {
		t.Fatal("did not bind on positive length")
	}

	f := store.Field(params.SourcePosition)
	if f.Min != 0 || f.Max != 44100 || f.Value() != 22050 {
		t.Fatalf("position field = [%v,%v] %v", f.Min, f.Max, f.Value())
	}
	pos, seq, ok := positionPush(t, link)
	if !ok || pos != 22050 {
		t.Fatalf("default push = %d, %v", pos, ok)
	}

	// Later reports, even different ones, do not rebind.
	link.Publish(protocol.ChContentLength, protocol.Ints(96000))
	for i := 0; i < 3; i++ {
		if n.Tick() {
			t.Fatal("rebound without a content switch")
		}
	}
	if _, seq2, _ := positionPush(t, link); seq2 != seq {
		t.Fatal("default pushed again without a content switch")
	}
	if n.Binds() != 1 {
		t.Fatalf("Binds = %d", n.Binds())
	}
}

func TestResetRenegotiates(t *testing.T) {
	n, link, store, l := setup(t)
	link.Publish(protocol.ChContentLength, protocol.Ints(44100))
	n.Tick()

	n.Reset()
	if _, ok := n.Bound(); ok {
		t.Fatal("Reset did not clear the bound length")
	}
	if l.resumes != 1 {
		t.Fatalf("resumes = %d, want 1", l.resumes)
	}
	if f := store.Field(params.SourcePosition); f.Max != 0 || f.Value() != 0 {
		t.Fatalf("position range [%v,%v] value %v survived the reset", f.Min, f.Max, f.Value())
	}
	if pos, _, _ := positionPush(t, link); pos != 0 {
		t.Fatalf("position push after reset = %d, want 0", pos)
	}

	// The old length is still in the slot; it must not be reused.
	if n.Tick() {
		t.Fatal("rebound on the stale length")
	}

	link.Publish(protocol.ChContentLength, protocol.Ints(0))
	if n.Tick() {
		t.Fatal("bound on zero while loading")
	}

	link.Publish(protocol.ChContentLength, protocol.Ints(88200))
	if !n.Tick() {
		t.Fatal("did not bind the new content")
	}
	if v, _ := store.Get(params.SourcePosition); v != 44100 {
		t.Fatalf("position = %v, want 44100", v)
	}
	if pos, _, _ := positionPush(t, link); pos != 44100 {
		t.Fatalf("default push = %d, want 44100", pos)
	}
	if n.Binds() != 2 {
		t.Fatalf("Binds = %d", n.Binds())
	}
}

func TestResetWithSameLengthRebindsOnRepublish(t *testing.T) {
	n, link, _, _ := setup(t)
	link.Publish(protocol.ChContentLength, protocol.Ints(1000))
	n.Tick()
	n.Reset()
	link.Publish(protocol.ChContentLength, protocol.Ints(1000))
	if !n.Tick() {
		t.Fatal("same length republished after switch should bind")
	}
}
