package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/maastricht-university/meetsync/meeting"
)

type TransSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
type ASRResp struct {
	Segments []TransSeg `json:"segments"`
	Language string     `json:"language"`
}

func (h *HTTP) ASR(ctx context.Context, url, wavPath string) (*ASRResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(url, "/transcribe"), &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out ASRResp
	if err := h.do(req, "asr", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transcription is the meeting.Transcriber backed by the ASR service. Segment times are
// relative to the uploaded clip.
type Transcription struct {
	http *HTTP
	url  string
}

func NewTranscription(h *HTTP, url string) *Transcription {
	return &Transcription{http: h, url: url}
}

func (t *Transcription) Transcribe(ctx context.Context, audio meeting.Audio) ([]meeting.TranscriptSegment, error) {
	if audio.Path == "" {
		return nil, fmt.Errorf("transcribe: audio has no backing file")
	}
	resp, err := t.http.ASR(ctx, t.url, audio.Path)
	if err != nil {
		return nil, err
	}
	out := make([]meeting.TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		if s.End <= s.Start {
			continue
		}
		out = append(out, meeting.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return out, nil
}
