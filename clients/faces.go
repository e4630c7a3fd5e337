package clients

import (
	"context"
	"encoding/base64"

	"github.com/maastricht-university/meetsync/meeting"
)

// --- Faces (/embed, /detect) ---
type imageReq struct {
	Image string `json:"image"`
}

type EmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

type DetectedFace struct {
	Embedding []float64 `json:"embedding"`
	Box       []float64 `json:"box,omitempty"`
}
type DetectResp struct {
	Faces []DetectedFace `json:"faces"`
}

// Faces implements meeting.FaceEmbedder and meeting.FaceDetector over the face service.
type Faces struct {
	http *HTTP
	url  string
}

func NewFaces(h *HTTP, url string) *Faces {
	return &Faces{http: h, url: url}
}

// Embed returns nil when the service found no face in the image.
func (f *Faces) Embed(ctx context.Context, image []byte) ([]float64, error) {
	var out EmbedResp
	if err := f.http.postJSON(ctx, endpoint(f.url, "/embed"), "face embed", encodeImage(image), &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, nil
	}
	return out.Embedding, nil
}

func (f *Faces) DetectFaces(ctx context.Context, image []byte) ([][]float64, error) {
	var out DetectResp
	if err := f.http.postJSON(ctx, endpoint(f.url, "/detect"), "face detect", encodeImage(image), &out); err != nil {
		return nil, err
	}
	embs := make([][]float64, 0, len(out.Faces))
	for _, face := range out.Faces {
		if len(face.Embedding) > 0 {
			embs = append(embs, face.Embedding)
		}
	}
	return embs, nil
}

func encodeImage(image []byte) imageReq {
	return imageReq{Image: base64.StdEncoding.EncodeToString(image)}
}

var (
	_ meeting.FaceEmbedder = (*Faces)(nil)
	_ meeting.FaceDetector = (*Faces)(nil)
)
