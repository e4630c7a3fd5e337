package face

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/meeting"
)

// Recognizer pairs a stateless embedding provider with an injected registry.
type Recognizer struct {
	embedder meeting.FaceEmbedder
	registry *Registry
	log      logrus.FieldLogger
}

func NewRecognizer(embedder meeting.FaceEmbedder, registry *Registry, log logrus.FieldLogger) *Recognizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recognizer{embedder: embedder, registry: registry, log: log}
}

// RegisterFrames embeds every frame and adds the faces it finds under name. It returns the
// number of embeddings added. An error is returned only when the context ends or when the
// provider failed on every frame.
func (r *Recognizer) RegisterFrames(ctx context.Context, name string, frames []meeting.Frame) (int, error) {
	added, failed := 0, 0
	var lastErr error
	for i, f := range frames {
		vec, err := r.embedder.Embed(ctx, f.Image)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return added, ctxErr
		}
		if err != nil {
			failed++
			lastErr = err
			r.log.WithError(err).WithField("frame", f.Index).Debug("face embedding failed")
			continue
		}
		if vec != nil {
			r.registry.Add(name, vec)
			added++
		}
		if i > 0 && i%100 == 0 {
			r.log.Debugf("processed %d frames for %s", i, name)
		}
	}
	if len(frames) > 0 && failed == len(frames) {
		return 0, fmt.Errorf("register %s: every frame failed: %w", name, lastErr)
	}
	r.log.WithFields(logrus.Fields{"frames": len(frames), "embeddings": added}).Info("face registration completed")
	return added, nil
}
