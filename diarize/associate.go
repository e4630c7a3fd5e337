package diarize

import (
	"sort"

	"github.com/maastricht-university/meetsync/meeting"
)

// Association ties a face seen in a video frame to the speaker label active at that moment.
type Association struct {
	Label meeting.SpeakerLabel  `json:"label"`
	Frame int                   `json:"frame"`
	Face  meeting.FaceEmbedding `json:"face"`
}

// Associate maps label i to face frame i*len(faces)/len(labels) and tags every face found there
// with that label. Several faces in one frame all receive the same label.
func Associate(labels []meeting.SpeakerLabel, faces [][]meeting.FaceEmbedding) []Association {
	if len(labels) == 0 || len(faces) == 0 {
		return nil
	}
	var out []Association
	for i, label := range labels {
		fi := i * len(faces) / len(labels)
		for _, f := range faces[fi] {
			out = append(out, Association{Label: label, Frame: fi, Face: f})
		}
	}
	return out
}

// Turn is a maximal run of frames sharing one label.
type Turn struct {
	Label   meeting.SpeakerLabel `json:"label"`
	Speaker string               `json:"speaker,omitempty"`
	Start   float64              `json:"start"`
	End     float64              `json:"end"`
}

// Turns collapses per-frame labels into timed turns.
func Turns(labels []meeting.SpeakerLabel, frameRate float64) []Turn {
	if len(labels) == 0 || frameRate <= 0 {
		return nil
	}
	var out []Turn
	start := 0
	for i := 1; i <= len(labels); i++ {
		if i < len(labels) && labels[i] == labels[start] {
			continue
		}
		out = append(out, Turn{
			Label: labels[start],
			Start: float64(start) / frameRate,
			End:   float64(i) / frameRate,
		})
		start = i
	}
	return out
}

// NameSpeakers names each label by majority vote over the identities of its associated faces.
// Unknown identities do not vote; ties go to the alphabetically first name.
func NameSpeakers(assocs []Association, identify func([]float64) string) map[meeting.SpeakerLabel]string {
	votes := map[meeting.SpeakerLabel]map[string]int{}
	cache := map[*float64]string{}
	for _, a := range assocs {
		if len(a.Face.Vector) == 0 {
			continue
		}
		key := &a.Face.Vector[0]
		name, ok := cache[key]
		if !ok {
			name = identify(a.Face.Vector)
			cache[key] = name
		}
		if name == "" || name == meeting.Unknown {
			continue
		}
		if votes[a.Label] == nil {
			votes[a.Label] = map[string]int{}
		}
		votes[a.Label][name]++
	}

	out := make(map[meeting.SpeakerLabel]string, len(votes))
	for label, counts := range votes {
		names := make([]string, 0, len(counts))
		for n := range counts {
			names = append(names, n)
		}
		sort.Strings(names)
		best := names[0]
		for _, n := range names[1:] {
			if counts[n] > counts[best] {
				best = n
			}
		}
		out[label] = best
	}
	return out
}
