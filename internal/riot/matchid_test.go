package riot

import "testing"

// TestNormalizeMatchID verifies platform-prefix normalization.
func TestNormalizeMatchID(t *testing.T) {
	tests := []struct {
		name           string
		matchID        string
		platform       string
		want           string
		wantNormalized bool
	}{
		{"already prefixed", "NA1_5296881234", "NA1", "NA1_5296881234", false},
		{"other platform prefix kept", "EUW1_123", "NA1", "EUW1_123", false},
		{"bare numeric id", "5296881234", "NA1", "NA1_5296881234", true},
		{"lowercase platform upcased", "123", "na1", "NA1_123", true},
		{"underscore anywhere counts as prefixed", "weird_id", "NA1", "weird_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, wasNormalized := NormalizeMatchID(tt.matchID, tt.platform)
			if got != tt.want {
				t.Errorf("NormalizeMatchID(%q, %q) = %q, want %q", tt.matchID, tt.platform, got, tt.want)
			}
			if wasNormalized != tt.wantNormalized {
				t.Errorf("wasNormalized = %v, want %v", wasNormalized, tt.wantNormalized)
			}
		})
	}
}

// TestMatchStartTimestamp verifies extraction from a raw detail payload.
func TestMatchStartTimestamp(t *testing.T) {
	ts, ok := MatchStartTimestamp([]byte(`{"info":{"gameStartTimestamp":1700000000000}}`))
	if !ok || ts != 1700000000000 {
		t.Errorf("got (%d, %v), want (1700000000000, true)", ts, ok)
	}

	if _, ok := MatchStartTimestamp([]byte(`{"info":{}}`)); ok {
		t.Error("expected ok=false when the field is absent")
	}
	if _, ok := MatchStartTimestamp([]byte(`not json`)); ok {
		t.Error("expected ok=false on malformed payload")
	}
}
