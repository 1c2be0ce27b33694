package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when both the primary and the fallback
// backend reject a request.
var ErrAllBackendsFailed = errors.New("embeddings: all backends failed")

// Fallback chains a primary embeddings backend with a secondary one, typically
// a hosted API backed by a local model. Requests go to the primary first; on
// failure the fallback is tried and the miss is logged.
//
// Both backends must produce vectors of the same dimensionality, otherwise
// stored vectors from one would be incomparable with queries from the other.
type Fallback struct {
	primary  Provider
	fallback Provider
	log      *slog.Logger
}

// NewFallback pairs primary with fallback. Returns an error when the two
// backends disagree on vector dimensions.
func NewFallback(primary, fallback Provider, log *slog.Logger) (*Fallback, error) {
	if primary == nil || fallback == nil {
		return nil, errors.New("embeddings: fallback requires both backends")
	}
	if p, f := primary.Dimensions(), fallback.Dimensions(); p != f {
		return nil, fmt.Errorf("embeddings: dimension mismatch: primary %d, fallback %d", p, f)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{primary: primary, fallback: fallback, log: log}, nil
}

// Embed implements [Provider].
func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := f.primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	f.log.Warn("primary embeddings backend failed, using fallback",
		"primary", f.primary.ModelID(), "err", err)

	vec, ferr := f.fallback.Embed(ctx, text)
	if ferr != nil {
		return nil, fmt.Errorf("%w: primary: %v; fallback: %v", ErrAllBackendsFailed, err, ferr)
	}
	return vec, nil
}

// EmbedBatch implements [Provider].
func (f *Fallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := f.primary.EmbedBatch(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	f.log.Warn("primary embeddings backend failed, using fallback",
		"primary", f.primary.ModelID(), "err", err)

	vecs, ferr := f.fallback.EmbedBatch(ctx, texts)
	if ferr != nil {
		return nil, fmt.Errorf("%w: primary: %v; fallback: %v", ErrAllBackendsFailed, err, ferr)
	}
	return vecs, nil
}

// Dimensions implements [Provider].
func (f *Fallback) Dimensions() int { return f.primary.Dimensions() }

// ModelID reports the primary's model; the fallback only serves its vectors.
func (f *Fallback) ModelID() string { return f.primary.ModelID() }
