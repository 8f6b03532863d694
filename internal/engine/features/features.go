// Package features turns text into sparse feature vectors. The classifier
// treats an Extractor as a black box; this package ships a hashed
// bag-of-words extractor and two dense embedding extractors.
package features

import (
	"context"

	"github.com/hejijunhao/canopy/internal/model"
)

// Extractor converts raw text into a feature vector.
type Extractor interface {
	Extract(ctx context.Context, text string) (model.FeatureVector, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string) (model.FeatureVector, error)

// Extract calls f(ctx, text).
func (f ExtractorFunc) Extract(ctx context.Context, text string) (model.FeatureVector, error) {
	return f(ctx, text)
}

// Closer is implemented by extractors that hold native or network resources.
type Closer interface {
	Close() error
}

// Close releases e if it implements Closer.
func Close(e Extractor) error {
	if c, ok := e.(Closer); ok {
		return c.Close()
	}
	return nil
}
