// Package score implements pronunciation similarity scoring.
//
// A spoken transcript is compared against the target text with Levenshtein
// edit distance after light normalisation (lower-casing, trimming, stripping
// sentence punctuation). The ratio is computed against the longer of the two
// normalised strings, so missing or extra characters are penalised relative
// to the hardest-to-match string rather than an average. The capture device's
// own recognition confidence adds a small bonus on top.
//
// Scores are in [0, 100]. The success threshold is owned by the caller, not
// by this package.
package score

import (
	"math"
	"strings"

	"github.com/antzucaro/matchr"
)

// confidenceWeight converts the device confidence in [0, 1] into score
// points. A fully confident recognition adds 10 points.
const confidenceWeight = 10

// Normalize prepares a string for comparison: lower-case, trimmed, with the
// sentence punctuation characters ".,!?" removed.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?':
			return -1
		}
		return r
	}, s)
}

// Score rates how closely spoken matches target, returning a value in
// [0, 100]. confidence is the capture device's recognition confidence in
// [0, 1]; it contributes up to 10 bonus points but never past 100.
//
// An exact match after normalisation scores 100 regardless of confidence.
// Two strings that are both empty after normalisation also score 100.
func Score(spoken, target string, confidence float64) float64 {
	spokenNorm := Normalize(spoken)
	targetNorm := Normalize(target)

	if spokenNorm == targetNorm {
		return 100
	}

	// The longer string is the denominator; on equal lengths the target wins,
	// which is irrelevant to the result since edit distance is symmetric.
	longer, shorter := targetNorm, spokenNorm
	if len([]rune(spokenNorm)) > len([]rune(targetNorm)) {
		longer, shorter = spokenNorm, targetNorm
	}

	length := len([]rune(longer))
	if length == 0 {
		return 100
	}

	distance := matchr.Levenshtein(longer, shorter)
	similarity := float64(length-distance) / float64(length) * 100
	similarity += confidence * confidenceWeight

	return math.Min(100, math.Max(0, similarity))
}
