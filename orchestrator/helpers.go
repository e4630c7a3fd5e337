package orchestrator

import (
	"math"
	"sort"

	"github.com/maastricht-university/meetsync/meeting"
)

// Dynamics cuts the timeline into sliding windows of width seconds overlapping by overlap seconds
// and aggregates speaking share and cross-talk inside each.
func Dynamics(tl meeting.Timeline, width, overlap float64) []Window {
	if len(tl) == 0 || width <= 0 {
		return nil
	}
	// compute session bounds
	start, end := tl[0].Start, tl[0].End
	for _, s := range tl {
		start = math.Min(start, s.Start)
		end = math.Max(end, s.End)
	}
	step := width - overlap
	if step <= 0 {
		step = width
	}
	span := end - start
	if math.IsNaN(span) || math.IsInf(span, 0) || span <= 0 {
		return nil
	}

	n := int(math.Ceil(span / step))
	out := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		t0 := start + float64(i)*step
		w := Window{T0: t0, T1: math.Min(t0+width, end)}
		for _, s := range tl {
			if s.End <= w.T0 || s.Start >= w.T1 {
				continue
			}
			w.Segments = append(w.Segments, s)
		}
		aggregate(&w)
		out = append(out, w)
	}
	return out
}

func aggregate(w *Window) {
	if len(w.Segments) == 0 {
		return
	}
	total := 0.0
	w.SpeakingShare = map[string]float64{}
	// speaking time clipped to the window, overlap via an edge sweep
	type edge struct {
		t     float64
		delta int
	}
	var edges []edge
	for _, s := range w.Segments {
		a, b := math.Max(s.Start, w.T0), math.Min(s.End, w.T1)
		d := math.Max(0, b-a)
		total += d
		w.SpeakingShare[s.Speaker] += d
		edges = append(edges, edge{t: a, delta: +1}, edge{t: b, delta: -1})
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].t != edges[j].t {
			return edges[i].t < edges[j].t
		}
		return edges[i].delta < edges[j].delta
	})
	active := 0
	last := edges[0].t
	overlap := 0.0
	for _, e := range edges {
		if active > 1 {
			overlap += e.t - last
		}
		active += e.delta
		last = e.t
	}
	if total > 0 {
		for k := range w.SpeakingShare {
			w.SpeakingShare[k] /= total
		}
	}
	if winDur := w.T1 - w.T0; winDur > 0 {
		w.OverlapRate = overlap / winDur
	}
	w.Turns = len(w.Segments)
	w.MeanTurn = total / float64(len(w.Segments))
}

// speakingShare is each speaker's fraction of the total speaking time of the timeline.
func speakingShare(tl meeting.Timeline) map[string]float64 {
	out := map[string]float64{}
	total := 0.0
	for _, s := range tl {
		d := math.Max(0, s.End-s.Start)
		out[s.Speaker] += d
		total += d
	}
	if total > 0 {
		for k := range out {
			out[k] /= total
		}
	}
	return out
}
