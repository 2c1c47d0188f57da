package theme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const gpl = `GIMP Palette
Name: Test
Columns: 3
# comment
  0   0   0	black
100 200  50	mid
255 255 255
bad line here
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(gpl))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Test" || len(p.Colors) != 3 {
		t.Fatalf("palette = %+v", p)
	}
	if p.Colors[1] != (RGB{100, 200, 50}) {
		t.Fatalf("color 1 = %v", p.Colors[1])
	}
	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n")); err == nil {
		t.Fatal("expected error for empty palette")
	}
}

func TestLookup(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}
	tests := []struct {
		norm float64
		want RGB
	}{
		{-1, RGB{0, 0, 0}},
		{0, RGB{0, 0, 0}},
		{0.5, RGB{100, 50, 25}},
		{1, RGB{200, 100, 50}},
		{2, RGB{200, 100, 50}},
	}
	for _, tt := range tests {
		if got := p.Lookup(tt.norm); got != tt.want {
			t.Errorf("Lookup(%v) = %v, want %v", tt.norm, got, tt.want)
		}
	}
	if p.Index(-3) != p.Colors[0] || p.Index(9) != p.Colors[1] {
		t.Error("Index does not clamp")
	}

	single := &Palette{Colors: []RGB{{1, 2, 3}}}
	if single.Lookup(0.5) != (RGB{1, 2, 3}) {
		t.Error("single-color lookup")
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "test.gpl"), []byte(gpl), 0644)

	p, err := Resolve("")
	if err != nil || p.Name != "Plasma" {
		t.Fatalf("default = %v, %v", p, err)
	}
	p, err = Resolve("test", t.TempDir(), dir)
	if err != nil || p.Name != "Test" {
		t.Fatalf("by name = %v, %v", p, err)
	}
	p, err = Resolve(filepath.Join(dir, "test.gpl"))
	if err != nil || p.Name != "Test" {
		t.Fatalf("by path = %v, %v", p, err)
	}
	if _, err := Resolve("nope", dir); err == nil {
		t.Fatal("expected error for unknown palette")
	}
}

func TestShippedPalettesParse(t *testing.T) {
	for _, name := range []string{"plasma", "ice"} {
		if _, err := Resolve(name, filepath.Join("..", "palettes")); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestThemeColors(t *testing.T) {
	th := New(nil)
	if th.BG() != "#0d0887" {
		t.Fatalf("bg = %s", th.BG())
	}
	if th.Success() != "#f0f921" {
		t.Fatalf("success = %s", th.Success())
	}
}
