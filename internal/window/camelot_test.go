package window

import "testing"

func TestKeyRelation(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"8A", "8A", KeyMatch},
		{"8a", "8A", KeyMatch}, // case-insensitive notation
		{"8A", "8B", KeyAdjacent},
		{"8A", "9A", KeyAdjacent},
		{"8A", "7A", KeyAdjacent},
		{"12A", "1A", KeyAdjacent}, // wheel wrap
		{"1B", "12B", KeyAdjacent},
		{"8A", "10A", KeyClash},
		{"8A", "2B", KeyClash},
		{"3A", "4B", KeyClash}, // cross-ring neighbours do not mix
		{"Unknown", "8A", KeyUnknown},
		{"", "8A", KeyUnknown},
		{"8A", "H7", KeyUnknown},
		{"13A", "8A", KeyUnknown}, // position off the wheel
	}
	for _, tt := range tests {
		if got := KeyRelation(tt.a, tt.b); got != tt.want {
			t.Errorf("KeyRelation(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestKeyRelationStandardNotation(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"Am", "8A", KeyMatch},    // Am is 8A
		{"Am", "C", KeyAdjacent},  // relative major
		{"F#m", "11A", KeyMatch},  // sharp minor
		{"Gbm", "F#m", KeyMatch},  // enharmonic spellings
		{"f#m", "11A", KeyMatch},  // lowercase root
		{"Em", "Am", KeyAdjacent}, // 9A vs 8A
		{"C", "F#", KeyClash},     // tritone
		{"G#m", "Abm", KeyMatch},
	}
	for _, tt := range tests {
		if got := KeyRelation(tt.a, tt.b); got != tt.want {
			t.Errorf("KeyRelation(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
