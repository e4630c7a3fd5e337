package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/clients"
	"github.com/maastricht-university/meetsync/config"
	"github.com/maastricht-university/meetsync/face"
	"github.com/maastricht-university/meetsync/features"
	"github.com/maastricht-university/meetsync/lipsync"
	"github.com/maastricht-university/meetsync/media"
	"github.com/maastricht-university/meetsync/observability"
	"github.com/maastricht-university/meetsync/orchestrator"
)

// buildPipeline wires the ffmpeg media layer, the HTTP providers and the in-process extractors.
// The returned close func removes the ffmpeg work directory.
func buildPipeline(cfg *config.Root, log *logrus.Logger, metrics *observability.Metrics) (*orchestrator.Pipeline, func() error, error) {
	method, err := lipsync.ParseMethod(cfg.LipSync.Method)
	if err != nil {
		return nil, nil, err
	}
	metric, err := face.ParseMetric(cfg.FaceRecognition.Metric)
	if err != nil {
		return nil, nil, err
	}

	ff, err := media.New(media.Config{
		Binary:     cfg.Paths.FFmpeg,
		TmpDir:     cfg.Paths.Tmp,
		SampleRate: cfg.Audio.SampleRate,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("media: %w", err)
	}

	h := clients.NewHTTPWithClient(&http.Client{Timeout: cfg.Services.Timeout})
	faces := clients.NewFaces(h, cfg.Services.Face.URL)
	deps := orchestrator.Deps{
		Audio:       ff,
		Frames:      ff,
		Transcriber: clients.NewTranscription(h, cfg.Services.ASR.URL),
		Faces:       faces,
		Landmarks:   clients.NewLandmarks(h, cfg.Services.Landmarks.URL),
		Features:    features.NewMFCC(cfg.MFCC()),
		Summarizer: clients.NewSummarizer(clients.SummarizerConfig{
			URL:      cfg.Summarizer.URL,
			APIKey:   cfg.Summarizer.APIKey,
			Model:    cfg.Summarizer.Model,
			Language: cfg.Summarizer.Language,
			Timeout:  cfg.Summarizer.Timeout,
			Retries:  cfg.Summarizer.Retries,
		}),
		DiarizationFeatures: features.NewMFCC(cfg.DiarizationMFCC()),
		Metrics:             metrics,
		Tracer:              observability.NewTracer(),
		Log:                 log,
	}
	if cfg.Combined.Video != "" {
		deps.Detector = faces
	}
	if cfg.Services.Visualization.URL != "" {
		deps.Publisher = clients.NewVisualization(h, cfg.Services.Visualization.URL)
	}

	p := orchestrator.NewPipeline(orchestrator.Options{
		VideoFPS:           cfg.Video.FPS,
		RegistrationFPS:    cfg.FaceRecognition.RegistrationFPS,
		LipSyncMethod:      method,
		FaceMetric:         metric,
		FaceThreshold:      cfg.FaceRecognition.Threshold,
		Diarization:        cfg.Diarization,
		Combined:           orchestrator.Source{Video: cfg.Combined.Video, Audio: cfg.Combined.Audio},
		NumWorkers:         cfg.Processing.NumWorkers,
		ParticipantTimeout: cfg.Processing.ParticipantTimeout,
		TimeWindow:         float64(cfg.Features.TimeWindow),
		Overlap:            float64(cfg.Features.Overlap),
		OutputDir:          cfg.Paths.Outputs,
	}, deps)
	return p, ff.Close, nil
}

// serveMetrics exposes reg on addr until the returned stop func is called.
func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
