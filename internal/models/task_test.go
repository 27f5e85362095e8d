package models

import "testing"

func TestPairingPartnerOf(t *testing.T) {
	pairing := &Pairing{UserIDs: []string{"u1", "u2"}}

	tests := []struct {
		name   string
		userID string
		want   string
	}{
		{"first member", "u1", "u2"},
		{"second member", "u2", "u1"},
		{"non-member", "u3", ""},
		{"empty id", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pairing.PartnerOf(tt.userID); got != tt.want {
				t.Errorf("PartnerOf(%q) = %q, want %q", tt.userID, got, tt.want)
			}
		})
	}
}

func TestPairingPartnerOfIncomplete(t *testing.T) {
	pairing := &Pairing{UserIDs: []string{"u1"}}
	if got := pairing.PartnerOf("u1"); got != "" {
		t.Errorf("lone member has no partner, got %q", got)
	}
	if got := pairing.PartnerOf("u2"); got != "" {
		t.Errorf("non-member of incomplete pairing must get \"\", got %q", got)
	}
}
