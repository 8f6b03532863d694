// Package config loads canopy settings from defaults, an optional YAML or
// TOML file and CANOPY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/go-playground/validator.v9"
)

// Version is set at build time via -ldflags "-X ...config.Version=...".
var Version = "dev"

const envPrefix = "CANOPY"

// Config holds all canopy configuration.
type Config struct {
	Scheme   SchemeConfig   `mapstructure:"scheme"`
	Store    StoreConfig    `mapstructure:"store"`
	Features FeaturesConfig `mapstructure:"features"`
	Training TrainingConfig `mapstructure:"training"`
	CrossVal CrossValConfig `mapstructure:"crossval"`
	Query    QueryConfig    `mapstructure:"query"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
}

// SchemeConfig identifies the concept scheme served.
type SchemeConfig struct {
	ID           string   `mapstructure:"id"`
	Languages    []string `mapstructure:"languages" validate:"min=1,dive,required"`
	TaxonomyPath string   `mapstructure:"taxonomy_path"`
	ReadOnly     bool     `mapstructure:"read_only"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite duckdb"`
	Path   string `mapstructure:"path" validate:"required"`
}

// FeaturesConfig selects and tunes the feature extractor.
type FeaturesConfig struct {
	Extractor string `mapstructure:"extractor" validate:"oneof=hashing onnx openai"`
	Buckets   int    `mapstructure:"buckets" validate:"min=1"`
	Bigrams   bool   `mapstructure:"bigrams"`

	ModelPath   string `mapstructure:"model_path"`
	VocabPath   string `mapstructure:"vocab_path"`
	RuntimePath string `mapstructure:"runtime_path"` // onnxruntime shared library; empty uses the system default

	OpenAIKey     string `mapstructure:"openai_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	OpenAIModel   string `mapstructure:"openai_model"`
}

// TrainingConfig tunes model fitting.
type TrainingConfig struct {
	Model         string  `mapstructure:"model" validate:"oneof=logistic perceptron"`
	Sampler       string  `mapstructure:"sampler" validate:"oneof=hierarchical exhaustive sampled"`
	MaxNegatives  int     `mapstructure:"max_negatives" validate:"min=0"`
	Workers       int     `mapstructure:"workers" validate:"min=1"`
	LearningRate  float64 `mapstructure:"learning_rate" validate:"gt=0"`
	L2            float64 `mapstructure:"l2" validate:"min=0"`
	Tolerance     float64 `mapstructure:"tolerance" validate:"gt=0"`
	MaxIterations int     `mapstructure:"max_iterations" validate:"min=1"`
}

// CrossValConfig selects the held-out fold. FoldCount 0 disables
// cross-validation.
type CrossValConfig struct {
	FoldIndex int  `mapstructure:"fold_index" validate:"min=0"`
	FoldCount int  `mapstructure:"fold_count" validate:"min=0"`
	AllFolds  bool `mapstructure:"all_folds"`
}

// QueryConfig holds suggestion cutoffs.
type QueryConfig struct {
	MaxSuggestions int      `mapstructure:"max_suggestions" validate:"min=0"` // 0 = unlimited
	MinScore       *float64 `mapstructure:"min_score"`
}

// OutputConfig holds output destination settings.
type OutputConfig struct {
	Format     string `mapstructure:"format" validate:"oneof=stdout file webhook"`
	Verbosity  string `mapstructure:"verbosity" validate:"oneof=minimal standard full"`
	Pretty     bool   `mapstructure:"pretty"`
	Path       string `mapstructure:"path"`
	MaxBytes   int64  `mapstructure:"max_bytes" validate:"min=0"` // rotate file output past this size; 0 disables
	WebhookURL string `mapstructure:"webhook_url"`
	Tee        bool   `mapstructure:"tee"` // also write to stdout when Format is file or webhook
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

var defaults = map[string]any{
	"scheme.id":                "",
	"scheme.languages":         []string{"en"},
	"scheme.taxonomy_path":     "",
	"scheme.read_only":         false,
	"store.driver":             "sqlite",
	"store.path":               "canopy.db",
	"features.extractor":       "hashing",
	"features.buckets":         1 << 20,
	"features.bigrams":         true,
	"features.model_path":      "models/model_quantized.onnx",
	"features.vocab_path":      "models/vocab.txt",
	"features.runtime_path":    "",
	"features.openai_key":      "",
	"features.openai_base_url": "",
	"features.openai_model":    "",
	"training.model":           "logistic",
	"training.sampler":         "hierarchical",
	"training.max_negatives":   50,
	"training.workers":         4,
	"training.learning_rate":   0.5,
	"training.l2":              1e-4,
	"training.tolerance":       1e-4,
	"training.max_iterations":  50,
	"crossval.fold_index":      0,
	"crossval.fold_count":      0,
	"crossval.all_folds":       false,
	"query.max_suggestions":    0,
	"output.format":            "stdout",
	"output.verbosity":         "standard",
	"output.webhook_url":       "",
	"output.tee":               false,
	"output.pretty":            false,
	"output.path":              "",
	"output.max_bytes":         0,
	"log.level":                "info",
	"log.format":               "text",
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default, so AutomaticEnv alone would not surface it on Unmarshal.
	if err := v.BindEnv("query.min_score"); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	vd := validator.New()
	vd.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return vd
}

// Validate checks the configuration and returns every problem found, each
// naming the environment variable that controls the setting.
func (c Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: invalid value %v (%s)", EnvName(fe.Namespace()), fe.Value(), rule(fe)))
		}
	}

	if c.CrossVal.FoldCount > 0 && c.CrossVal.FoldIndex >= c.CrossVal.FoldCount {
		errs = append(errs, fmt.Errorf("%s: fold index %d outside [0, %d)",
			EnvName("crossval.fold_index"), c.CrossVal.FoldIndex, c.CrossVal.FoldCount))
	}

	switch c.Features.Extractor {
	case "onnx":
		for key, p := range map[string]string{
			"features.model_path": c.Features.ModelPath,
			"features.vocab_path": c.Features.VocabPath,
		} {
			if _, err := os.Stat(p); err != nil {
				errs = append(errs, fmt.Errorf("%s: model file %q: %w", EnvName(key), p, err))
			}
		}
	case "openai":
		if c.Features.OpenAIKey == "" {
			errs = append(errs, fmt.Errorf("%s is required when the openai extractor is selected",
				EnvName("features.openai_key")))
		}
	}

	if c.Output.Format == "file" && c.Output.Path == "" {
		errs = append(errs, fmt.Errorf("%s is required for file output", EnvName("output.path")))
	}
	if c.Output.Format == "webhook" && c.Output.WebhookURL == "" {
		errs = append(errs, fmt.Errorf("%s is required for webhook output", EnvName("output.webhook_url")))
	}

	return errors.Join(errs...)
}

// EnvName maps a config key ("training.workers" or a validator namespace
// such as "Config.training.workers") to its environment variable.
func EnvName(key string) string {
	key = strings.TrimPrefix(key, "Config.")
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func rule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
