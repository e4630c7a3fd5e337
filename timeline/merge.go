// Package timeline merges per-participant segment streams and renders the result.
package timeline

import (
	"sort"

	"github.com/maastricht-university/meetsync/meeting"
)

// Merge concatenates seqs in order and stable-sorts by start time. Overlapping segments from
// different speakers are kept as separate entries and equal starts keep their input order.
func Merge(seqs ...[]meeting.Segment) meeting.Timeline {
	total := 0
	for _, s := range seqs {
		total += len(s)
	}
	out := make(meeting.Timeline, 0, total)
	for _, s := range seqs {
		out = append(out, s...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Sorted reports whether every adjacent pair is ordered by start.
func Sorted(tl meeting.Timeline) bool {
	for i := 1; i < len(tl); i++ {
		if tl[i-1].Start > tl[i].Start {
			return false
		}
	}
	return true
}

// Speakers lists the distinct speakers in order of first appearance.
func Speakers(tl meeting.Timeline) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range tl {
		if !seen[s.Speaker] {
			seen[s.Speaker] = true
			out = append(out, s.Speaker)
		}
	}
	return out
}
