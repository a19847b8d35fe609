package strategy

import (
	"testing"

	"media-acquire-go/pkg/auth"
)

func TestDefault_Order(t *testing.T) {
	m := Default()
	got := m.Strategies()

	wantLabels := []string{"ios", "android", "web", "tv_embedded"}
	if len(got) != len(wantLabels) {
		t.Fatalf("got %d strategies, want %d", len(got), len(wantLabels))
	}
	for i, want := range wantLabels {
		if got[i].Label != want {
			t.Errorf("strategy %d = %q, want %q", i, got[i].Label, want)
		}
	}
}

func TestDefault_Profiles(t *testing.T) {
	m := Default()
	byLabel := make(map[string]Strategy)
	for _, s := range m.Strategies() {
		byLabel[s.Label] = s
	}

	if p := byLabel["ios"].Profile; p.Name != "IOS" || p.ContextNameID != 5 {
		t.Errorf("ios profile = %+v", p)
	}
	if p := byLabel["android"].Profile; p.Name != "ANDROID" || p.ContextNameID != 3 {
		t.Errorf("android profile = %+v", p)
	}
	if p := byLabel["web"].Profile; p.Name != "WEB" || p.ContextNameID != 1 {
		t.Errorf("web profile = %+v", p)
	}
	if p := byLabel["tv_embedded"].Profile; p.Name != "TVHTML5_SIMPLY_EMBEDDED_PLAYER" || p.ContextNameID != 85 {
		t.Errorf("tv_embedded profile = %+v", p)
	}

	// Only the web persona carries tokens and demands a bundle.
	for label, s := range byLabel {
		wantTokens := label == "web"
		if s.TokenEligible != wantTokens {
			t.Errorf("%s TokenEligible = %v, want %v", label, s.TokenEligible, wantTokens)
		}
		if s.RequiresBundle != wantTokens {
			t.Errorf("%s RequiresBundle = %v, want %v", label, s.RequiresBundle, wantTokens)
		}
	}
}

func TestMatrix_Eligible(t *testing.T) {
	m := Default()

	// Without a bundle the web persona is skipped.
	noBundle := m.Eligible(nil)
	for _, s := range noBundle {
		if s.Label == "web" {
			t.Error("web strategy eligible without a bundle")
		}
	}
	if len(noBundle) != 3 {
		t.Errorf("Eligible(nil) = %d strategies, want 3", len(noBundle))
	}

	bundle, err := auth.NewBundle("us", nil, "tok", "vis")
	if err != nil {
		t.Fatal(err)
	}
	withBundle := m.Eligible(bundle)
	if len(withBundle) != 4 {
		t.Errorf("Eligible(bundle) = %d strategies, want 4", len(withBundle))
	}
	// Priority order is preserved.
	if withBundle[0].Label != "ios" || withBundle[2].Label != "web" {
		t.Errorf("eligible order = %v", labels(withBundle))
	}
}

func TestMatrix_TokenEligible(t *testing.T) {
	m := Default()
	got := m.TokenEligible()
	if len(got) != 1 || got[0].Label != "web" {
		t.Errorf("TokenEligible() = %v, want [web]", labels(got))
	}
}

func labels(strategies []Strategy) []string {
	out := make([]string, len(strategies))
	for i, s := range strategies {
		out[i] = s.Label
	}
	return out
}
