package parser

import (
	"strconv"
	"strings"

	"github.com/saviobatista/worldflightpedia/internal/types"
)

const (
	// MarkerPOICoordinates identifies a POI coordinates payload
	MarkerPOICoordinates = "POI_COORDINATES"

	keyData = `"data"`
	keyLat  = `"lat"`
	keyLon  = `"lon"`
)

// IsPOIMessage reports whether msg carries the POI marker and a "data" array
func IsPOIMessage(msg string) bool {
	_, ok := dataStart(msg)
	return ok
}

// ParsePOICoordinates extracts the ordered (lat, lon) pairs of a POI message.
//
// This is a single forward scan, not a JSON parser: it looks for the "lat" key,
// the next colon and a number, then the same for "lon". A missing key or an
// unparsable number ends the scan and the pairs collected so far are returned.
// It never fails; a message without the marker yields an empty result.
func ParsePOICoordinates(msg string) []types.Coordinate {
	result := []types.Coordinate{}

	pos, ok := dataStart(msg)
	if !ok {
		return result
	}

	for {
		lat, next, ok := scanField(msg, pos, keyLat)
		if !ok {
			break
		}
		lon, next, ok := scanField(msg, next, keyLon)
		if !ok {
			break
		}
		result = append(result, types.Coordinate{Latitude: lat, Longitude: lon})
		pos = next
	}

	return result
}

// dataStart returns the offset just past the '[' that opens the data array
func dataStart(msg string) (int, bool) {
	if !strings.Contains(msg, MarkerPOICoordinates) {
		return 0, false
	}
	dataPos := strings.Index(msg, keyData)
	if dataPos < 0 {
		return 0, false
	}
	bracket := strings.IndexByte(msg[dataPos:], '[')
	if bracket < 0 {
		return 0, false
	}
	return dataPos + bracket + 1, true
}

// scanField finds key at or after from, the colon following it and the number
// after the colon. It returns the value and the offset just past the number.
func scanField(msg string, from int, key string) (float64, int, bool) {
	k := strings.Index(msg[from:], key)
	if k < 0 {
		return 0, 0, false
	}
	keyPos := from + k
	c := strings.IndexByte(msg[keyPos:], ':')
	if c < 0 {
		return 0, 0, false
	}
	start := keyPos + c + 1
	v, n := scanFloat(msg[start:])
	if n == 0 {
		return 0, 0, false
	}
	return v, start + n, true
}

// scanFloat parses the longest decimal floating point prefix of s, after
// optional leading whitespace, and returns the value and the number of bytes
// consumed. n is 0 when no number is present.
func scanFloat(s string) (float64, int) {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, 0
	}

	// exponent only counts when at least one digit follows
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}

	v, err := strconv.ParseFloat(s[start:i], 64)
	if err != nil {
		// out of range; strtod saturates the same way
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return v, i
		}
		return 0, 0
	}
	return v, i
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
