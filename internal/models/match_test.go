package models

import (
	"encoding/json"
	"testing"
)

// TestHasDetail verifies SQL NULL and JSON null both count as missing.
func TestHasDetail(t *testing.T) {
	tests := []struct {
		name string
		info json.RawMessage
		want bool
	}{
		{"nil payload", nil, false},
		{"empty payload", json.RawMessage{}, false},
		{"json null", json.RawMessage("null"), false},
		{"real payload", json.RawMessage(`{"info":{}}`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MatchRecord{GameID: "NA1_1", GameInfo: tt.info}
			if got := m.HasDetail(); got != tt.want {
				t.Errorf("HasDetail() = %v, want %v", got, tt.want)
			}
		})
	}
}
