package core

import "testing"

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"id", StrategyID},
		{"css", StrategyCSS},
		{"css selector", StrategyCSS},
		{"linkText", StrategyLinkText},
		{"link text", StrategyLinkText},
		{"partialLinkText", StrategyPartialLinkText},
		{"xpath", StrategyXPath},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if err != nil {
			t.Fatalf("ParseStrategy(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStrategy_Unknown(t *testing.T) {
	_, err := ParseStrategy("accessibility id")
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if CategoryOf(err) != ErrCategoryConfig {
		t.Errorf("category = %s, want config", CategoryOf(err))
	}
}

func TestStrategies_Complete(t *testing.T) {
	seen := map[Strategy]bool{}
	for _, s := range Strategies {
		if seen[s] {
			t.Errorf("duplicate strategy %q", s)
		}
		seen[s] = true
		if _, err := ParseStrategy(string(s)); err != nil {
			t.Errorf("strategy %q does not round-trip through ParseStrategy", s)
		}
	}
	if len(seen) != 5 {
		t.Errorf("got %d strategies, want 5", len(seen))
	}
}
