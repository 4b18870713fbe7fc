// Package detector recognises anti-bot interstitials served in place of the
// page or payload that was asked for.
package detector

import (
	"bytes"
	"strings"
)

// Heuristic implements a handful of rule-based checks.
type Heuristic struct {
	// BodyLengthThreshold bounds the script-density rule; challenge pages are
	// small and mostly script.
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// challengeMarkers belong to the interstitial itself. The
// /cdn-cgi/challenge-platform/scripts/jsd beacon is injected into ordinary
// pages too, so that path is not a marker.
var challengeMarkers = [][]byte{
	[]byte("cf-challenge"),
	[]byte("cf-chl-"),
	[]byte(`id="challenge-form"`),
	[]byte("<title>just a moment...</title>"),
	[]byte("attention required! | cloudflare"),
	[]byte("verify you are human"),
}

// IsChallenge reports whether body is an HTML interstitial. JSON payloads
// never match, whatever text they carry.
func (h *Heuristic) IsChallenge(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	lower := bytes.ToLower(trimmed)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return len(trimmed) < h.BodyLengthThreshold && scriptDensityHigh(trimmed)
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed trailing tag; count the rest.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 50
}
