package theme

import (
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/flyover/internal/notify"
)

func TestGet_FallsBackToNightfox(t *testing.T) {
	if got := Get("nope").Name; got != "Nightfox" {
		t.Fatalf("Get(nope).Name = %q, want Nightfox", got)
	}
	if got := Get("Slate").Name; got != "Slate" {
		t.Fatalf("Get(Slate).Name = %q, want Slate", got)
	}
}

func TestNext_Cycles(t *testing.T) {
	names := Names()
	for i, name := range names {
		want := names[(i+1)%len(names)]
		if got := Next(name); got != want {
			t.Errorf("Next(%q) = %q, want %q", name, got, want)
		}
	}
	if got := Next("unknown"); got != names[0] {
		t.Fatalf("Next(unknown) = %q, want %q", got, names[0])
	}
}

func TestNames_ReturnsCopy(t *testing.T) {
	names := Names()
	names[0] = "mutated"
	if Names()[0] == "mutated" {
		t.Fatal("Names exposed internal slice")
	}
}

func TestBlend_Endpoints(t *testing.T) {
	if got := Blend("#000000", "#ffffff", 0); got != "#000000" {
		t.Fatalf("Blend t=0 = %q", got)
	}
	if got := Blend("#000000", "#ffffff", 1); got != "#ffffff" {
		t.Fatalf("Blend t=1 = %q", got)
	}
	mid := Blend("#000000", "#ffffff", 0.5)
	if mid == "#000000" || mid == "#ffffff" {
		t.Fatalf("Blend t=0.5 = %q, want a mix", mid)
	}
	if got := Blend("bogus", "#123456", 0.5); got != "#123456" {
		t.Fatalf("Blend with bad input = %q", got)
	}
}

func TestWidgetBackground(t *testing.T) {
	th := Get("Nightfox")
	if _, ok := th.WidgetBackground(MinOpacity); ok {
		t.Fatal("background at MinOpacity should be transparent")
	}
	c, ok := th.WidgetBackground(100)
	if !ok || c != lipgloss.Color(th.Surface) {
		t.Fatalf("WidgetBackground(100) = %v, %v", c, ok)
	}
	if _, ok := th.WidgetBackground(50); !ok {
		t.Fatal("WidgetBackground(50) should be opaque")
	}
}

func TestSeverityColor(t *testing.T) {
	th := Get("Kanagawa")
	s := th.Styles()
	if got := s.SeverityColor(notify.Error); got != lipgloss.Color(th.Danger) {
		t.Fatalf("SeverityColor(error) = %v, want %v", got, th.Danger)
	}
	if got := s.SeverityColor("other"); got != lipgloss.Color(th.Muted) {
		t.Fatalf("SeverityColor(other) = %v, want %v", got, th.Muted)
	}
}
