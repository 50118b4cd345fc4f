package marketplace

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"plain float", 12.5, "12.5", true},
		{"int", 7, "7", true},
		{"nano heuristic", 2_500_000_000.0, "2.5", true},
		{"just above threshold", 1500.0, "0", false}, // 1500 nano rounds to 0.00
		{"at threshold stays whole", 1000.0, "1000", true},
		{"string", "3.75", "3.75", true},
		{"string with suffix", "12.5 TON", "12.5", true},
		{"string with commas", "1,250,000,000", "1.25", true},
		{"zero", 0.0, "0", false},
		{"negative", -1.0, "0", false},
		{"garbage string", "free", "0", false},
		{"nil", nil, "0", false},
		{"rounding", 4.996, "5", true},
	}

	for _, tt := range tests {
		got, ok := ParseTON(tt.in)
		if ok != tt.ok {
			t.Errorf("%s: ParseTON(%v) ok = %v, want %v", tt.name, tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%s: ParseTON(%v) = %s, want %s", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	if got := clampLimit(100, 30); got != 30 {
		t.Errorf("clampLimit(100, 30) = %d, want 30", got)
	}
	if got := clampLimit(0, 30); got != 1 {
		t.Errorf("clampLimit(0, 30) = %d, want 1", got)
	}
	if got := clampLimit(15, 30); got != 15 {
		t.Errorf("clampLimit(15, 30) = %d, want 15", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindAuth},
		{429, KindTransient},
		{500, KindTransient},
		{503, KindTransient},
		{400, KindProtocol},
		{404, KindProtocol},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	err := errNoToken("portals", "search")
	if !IsPermanent(err) {
		t.Error("errNoToken should be permanent")
	}
	if IsTransient(err) || IsAuth(err) {
		t.Error("errNoToken should be neither transient nor auth")
	}

	authErr := wrapErr("mrkt", "search", 401, nil)
	if !IsAuth(authErr) {
		t.Error("401 should classify as auth")
	}
}

func TestAsItems(t *testing.T) {
	t.Parallel()

	// Bare list.
	items := asItems([]any{map[string]any{"id": "1"}})
	if len(items) != 1 {
		t.Fatalf("bare list: got %d items", len(items))
	}

	// Envelope fallback order.
	data := map[string]any{"results": []any{map[string]any{"id": "2"}}}
	items = asItems(data, "results", "items")
	if len(items) != 1 || Str(items[0], "id") != "2" {
		t.Fatalf("envelope: got %v", items)
	}

	// Non-list payload.
	if got := asItems(map[string]any{"other": 1}, "results"); got != nil {
		t.Errorf("non-list payload should yield nil, got %v", got)
	}
}

func TestTokenStore(t *testing.T) {
	t.Parallel()

	s := NewTokenStore(nil)
	if s.Has("portals") {
		t.Error("empty store should have no tokens")
	}
	s.Set("portals", "tok-1")
	if got := s.Get("portals"); got != "tok-1" {
		t.Errorf("Get = %q, want tok-1", got)
	}
}
