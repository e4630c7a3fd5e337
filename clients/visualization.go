package clients

import (
	"context"

	"github.com/maastricht-university/meetsync/meeting"
)

// --- Visualization ---
type TimelineReq struct {
	Timestamps []float64 `json:"timestamps"`
	Ends       []float64 `json:"ends"`
	Clusters   []int     `json:"clusters"`
	Speakers   []string  `json:"speakers"`
	OutputDir  string    `json:"output_dir,omitempty"`
}

type TimelineResp struct{ Status, Path string }

func (h *HTTP) GenerateTimeline(ctx context.Context, url string, req TimelineReq) (*TimelineResp, error) {
	var out TimelineResp
	if err := h.postJSON(ctx, endpoint(url, "/generate-timeline"), "viz timeline", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type RadarReq struct {
	Categories  []string  `json:"categories"`
	Values      []float64 `json:"values"`
	Participant string    `json:"participant_name"`
	OutputDir   string    `json:"output_dir,omitempty"`
}
type RadarResp struct{ Status, Path string }

func (h *HTTP) GenerateRadar(ctx context.Context, url string, req RadarReq) (*RadarResp, error) {
	var out RadarResp
	if err := h.postJSON(ctx, endpoint(url, "/generate-radar"), "viz radar", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Visualization publishes a finished run to the plotting service.
type Visualization struct {
	http *HTTP
	url  string
}

func NewVisualization(h *HTTP, url string) *Visualization {
	return &Visualization{http: h, url: url}
}

// TimelineRequest encodes one row per segment; speakers are numbered by first appearance.
func TimelineRequest(tl meeting.Timeline, outputDir string) TimelineReq {
	req := TimelineReq{
		Timestamps: make([]float64, len(tl)),
		Ends:       make([]float64, len(tl)),
		Clusters:   make([]int, len(tl)),
		Speakers:   []string{},
		OutputDir:  outputDir,
	}
	ids := map[string]int{}
	for i, s := range tl {
		id, ok := ids[s.Speaker]
		if !ok {
			id = len(ids)
			ids[s.Speaker] = id
			req.Speakers = append(req.Speakers, s.Speaker)
		}
		req.Timestamps[i] = s.Start
		req.Ends[i] = s.End
		req.Clusters[i] = id
	}
	return req
}

func (v *Visualization) PublishTimeline(ctx context.Context, tl meeting.Timeline, outputDir string) (string, error) {
	resp, err := v.http.GenerateTimeline(ctx, v.url, TimelineRequest(tl, outputDir))
	if err != nil {
		return "", err
	}
	return resp.Path, nil
}

// PublishRadar sends one participant's profile, categories and values in matching order.
func (v *Visualization) PublishRadar(ctx context.Context, participant string, categories []string, values []float64, outputDir string) (string, error) {
	resp, err := v.http.GenerateRadar(ctx, v.url, RadarReq{
		Categories:  categories,
		Values:      values,
		Participant: participant,
		OutputDir:   outputDir,
	})
	if err != nil {
		return "", err
	}
	return resp.Path, nil
}
