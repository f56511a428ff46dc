package window

import (
	"regexp"
	"strconv"
	"strings"
)

// Key relations used in the decision feature snapshot.
const (
	KeyMatch    = "match"    // same Camelot position
	KeyAdjacent = "adjacent" // one step on the wheel or relative major/minor
	KeyClash    = "clash"    // anything further apart
	KeyUnknown  = "unknown"  // at least one side undetected
)

var camelotNotation = regexp.MustCompile(`^(\d{1,2})([AB])$`)

// standardToCamelot maps conventional key names onto the Camelot wheel.
// Minor keys sit on the A ring, major keys on the B ring.
var standardToCamelot = map[string]string{
	"Abm": "1A", "G#m": "1A", "B": "1B",
	"Ebm": "2A", "F#": "2B", "Gb": "2B",
	"Bbm": "3A", "A#m": "3A", "Db": "3B", "C#": "3B",
	"Fm": "4A", "Ab": "4B", "G#": "4B",
	"Cm": "5A", "Eb": "5B", "D#": "5B",
	"Gm": "6A", "Bb": "6B", "A#": "6B",
	"Dm": "7A", "F": "7B",
	"Am": "8A", "C": "8B",
	"Em": "9A", "G": "9B",
	"Bm": "10A", "D": "10B",
	"F#m": "11A", "Gbm": "11A", "A": "11B",
	"C#m": "12A", "Dbm": "12A", "E": "12B",
}

// camelot parses a key string ("8A", "Am", "F#") into wheel position and
// ring. ok is false for unknown/unparseable keys.
func camelot(key string) (pos int, ring byte, ok bool) {
	key = strings.TrimSpace(key)
	if key == "" || strings.EqualFold(key, "unknown") {
		return 0, 0, false
	}
	if m := camelotNotation.FindStringSubmatch(strings.ToUpper(key)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 12 {
			return 0, 0, false
		}
		return n, m[2][0], true
	}
	if c, found := standardToCamelot[normalizeStandard(key)]; found {
		m := camelotNotation.FindStringSubmatch(c)
		n, _ := strconv.Atoi(m[1])
		return n, m[2][0], true
	}
	return 0, 0, false
}

// normalizeStandard canonicalizes the root letter case: "f#m" -> "F#m".
func normalizeStandard(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

// KeyRelation classifies two track keys by Camelot mixing distance.
func KeyRelation(a, b string) string {
	posA, ringA, okA := camelot(a)
	posB, ringB, okB := camelot(b)
	if !okA || !okB {
		return KeyUnknown
	}
	if posA == posB {
		if ringA == ringB {
			return KeyMatch
		}
		return KeyAdjacent // relative major/minor
	}
	if ringA == ringB {
		diff := posA - posB
		if diff < 0 {
			diff = -diff
		}
		if diff == 1 || diff == 11 { // wheel wraps 12 -> 1
			return KeyAdjacent
		}
	}
	return KeyClash
}
