package main

import "testing"

func TestParseCursor(t *testing.T) {
	tests := []struct {
		name      string
		cursor    string
		wantSlot  int64
		wantSig   string
		expectErr bool
	}{
		{"valid", "1234:sigABC", 1234, "sigABC", false},
		{"signature with colon-free base58", "987654321:5VERYsig", 987654321, "5VERYsig", false},
		{"missing separator", "1234", 0, "", true},
		{"non-numeric slot", "abc:sig", 0, "", true},
		{"negative slot", "-5:sig", 0, "", true},
		{"zero slot", "0:sig", 0, "", true},
		{"empty signature", "1234:", 0, "", true},
		{"empty cursor", "", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, sig, err := parseCursor(tt.cursor)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error for cursor %q, got slot=%d sig=%q", tt.cursor, slot, sig)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if slot != tt.wantSlot || sig != tt.wantSig {
				t.Errorf("parseCursor(%q) = (%d, %q), want (%d, %q)", tt.cursor, slot, sig, tt.wantSlot, tt.wantSig)
			}
		})
	}
}
