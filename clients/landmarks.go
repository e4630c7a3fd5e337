package clients

import (
	"context"
	"fmt"

	"github.com/maastricht-university/meetsync/meeting"
)

// --- Landmarks (/mouth) ---
type MouthResp struct {
	Points [][]float64 `json:"points"`
}

// Landmarks implements meeting.LandmarkDetector over the landmark service.
type Landmarks struct {
	http *HTTP
	url  string
}

func NewLandmarks(h *HTTP, url string) *Landmarks {
	return &Landmarks{http: h, url: url}
}

// DetectMouth returns nil when no face was found.
func (l *Landmarks) DetectMouth(ctx context.Context, image []byte) ([]meeting.Point, error) {
	var out MouthResp
	if err := l.http.postJSON(ctx, endpoint(l.url, "/mouth"), "landmarks", encodeImage(image), &out); err != nil {
		return nil, err
	}
	if len(out.Points) == 0 {
		return nil, nil
	}
	pts := make([]meeting.Point, len(out.Points))
	for i, p := range out.Points {
		if len(p) < 2 {
			return nil, fmt.Errorf("landmarks: point %d has %d coordinates: %w", i, len(p), meeting.ErrProvider)
		}
		pts[i] = meeting.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}

var _ meeting.LandmarkDetector = (*Landmarks)(nil)
