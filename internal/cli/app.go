package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hejijunhao/canopy/internal/output"
	"github.com/hejijunhao/canopy/internal/output/async"
	"github.com/hejijunhao/canopy/internal/output/file"
	"github.com/hejijunhao/canopy/internal/output/multi"
	"github.com/hejijunhao/canopy/internal/output/stdout"
	"github.com/hejijunhao/canopy/internal/output/webhook"
	"github.com/hejijunhao/canopy/pkg/canopy"
)

// open builds a Classifier from the loaded configuration.
func (a *app) open() (*canopy.Classifier, error) {
	cfg := a.cfg
	opts := []canopy.Option{
		canopy.WithDatabase(cfg.Store.Driver, cfg.Store.Path),
		canopy.WithAcceptedLanguages(cfg.Scheme.Languages...),
		canopy.WithFitter(cfg.Training.Model),
		canopy.WithFitParams(cfg.Training.LearningRate, cfg.Training.L2, cfg.Training.Tolerance, cfg.Training.MaxIterations),
		canopy.WithNegativeSampler(cfg.Training.Sampler, cfg.Training.MaxNegatives),
		canopy.WithWorkers(cfg.Training.Workers),
		canopy.WithCrossValidation(cfg.CrossVal.FoldIndex, cfg.CrossVal.FoldCount, cfg.CrossVal.AllFolds),
		canopy.WithMaxSuggestions(cfg.Query.MaxSuggestions),
	}
	if cfg.Scheme.ID != "" {
		opts = append(opts, canopy.WithSchemeID(cfg.Scheme.ID))
	}
	if cfg.Scheme.ReadOnly {
		opts = append(opts, canopy.WithReadOnly())
	}
	if cfg.Query.MinScore != nil {
		opts = append(opts, canopy.WithMinScore(*cfg.Query.MinScore))
	}

	switch cfg.Features.Extractor {
	case "onnx":
		opts = append(opts,
			canopy.WithModelPaths(cfg.Features.ModelPath, cfg.Features.VocabPath),
			canopy.WithONNXRuntime(cfg.Features.RuntimePath))
	case "openai":
		opts = append(opts, canopy.WithExtractor(
			canopy.OpenAIExtractor(cfg.Features.OpenAIKey, cfg.Features.OpenAIBaseURL, cfg.Features.OpenAIModel)))
	default:
		opts = append(opts, canopy.WithExtractor(
			canopy.HashingExtractor(cfg.Features.Buckets, cfg.Features.Bigrams)))
	}
	return canopy.New(opts...)
}

// newOutput builds the record sink named by output.format for records of
// the given scheme. w stands in for stdout.
func (a *app) newOutput(w io.Writer, schemeID string) (output.Output, error) {
	cfg := a.cfg.Output
	verbosity, err := output.ParseVerbosity(cfg.Verbosity)
	if err != nil {
		return nil, err
	}
	console := stdout.NewWriter(w, verbosity, cfg.Pretty)

	var primary output.Output
	switch cfg.Format {
	case "file":
		primary, err = file.New(cfg.Path, verbosity, file.WithMaxSize(cfg.MaxBytes))
		if err != nil {
			return nil, err
		}
	case "webhook":
		// Records are not stripped for the webhook; it batches full JSON.
		primary = async.New(webhook.New(cfg.WebhookURL, webhook.WithScheme(schemeID)),
			async.WithShedSuggestions())
	default:
		return console, nil
	}
	if cfg.Tee {
		return multi.New(multi.To(cfg.Format, primary), multi.To("console", console)), nil
	}
	return primary, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
