// Package runcfg resolves the configuration for a single train-then-eval run.
//
// A RunConfig is built once, from explicit overrides or from the process
// environment, and is immutable afterwards. Every field that is not provided
// falls back to its documented default; the three dataset/checkpoint paths
// have no defaults and must always be supplied.
package runcfg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Values forwarded to the external scripts that are not configurable. The
// loader worker count matches what the training machines can sustain, and
// evaluation always sweeps checkpoints starting from the first epoch.
const (
	NumWorkers = 4
	StartEpoch = 1
)

const (
	DefaultTrainList    = "Fungal_train.txt"
	DefaultTestList     = "Fungal_eval.txt"
	DefaultModel        = "resnet50"
	DefaultVersion      = "TAME"
	DefaultWeightDecay  = 5e-4
	DefaultMaxLR        = 1e-2
	DefaultTrainEpochs  = 8
	DefaultEvalEndEpoch = 32
	DefaultBatchSize    = 32
	DefaultDevices      = "0"
)

func defaultLayers() []string {
	return []string{"layer2", "layer3", "layer4"}
}

type RunConfig struct {
	ImgDir      string `env:"IMGDIR" json:"img_dir"`
	ValDir      string `env:"VALDIR" json:"val_dir"`
	RestoreFrom string `env:"RESTORE" json:"restore_from"`

	TrainList string `env:"TRAIN" envDefault:"Fungal_train.txt" json:"train_list"`
	TestList  string `env:"TEST" envDefault:"Fungal_eval.txt" json:"test_list"`

	Model   string `env:"MODEL" envDefault:"resnet50" json:"model"`
	Version string `env:"VERSION" envDefault:"TAME" json:"version"`

	Layers []string `env:"LAYERS" envSeparator:" " envDefault:"layer2 layer3 layer4" json:"layers"`

	WeightDecay float64 `env:"WD" envDefault:"5e-4" json:"weight_decay"`
	MaxLR       float64 `env:"MLR" envDefault:"1e-2" json:"max_lr"`

	// TrainEpochs and EvalEndEpoch are intentionally independent: training
	// defaults to 8 epochs while evaluation sweeps checkpoints up to epoch 32.
	// EPOCHS only changes the former, EVAL_END_EPOCH the latter.
	TrainEpochs  int `env:"EPOCHS" envDefault:"8" json:"train_epochs"`
	EvalEndEpoch int `env:"EVAL_END_EPOCH" envDefault:"32" json:"eval_end_epoch"`

	BatchSize int `env:"BSIZE" envDefault:"32" json:"batch_size"`

	// Devices is the value exported as CUDA_VISIBLE_DEVICES for both stages.
	Devices string `env:"DEVICES" envDefault:"0" json:"devices"`
}

// ConfigError reports required fields that had no value after resolution.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required config values: %s", strings.Join(e.Missing, ", "))
}

// Resolve builds a RunConfig from an explicit override mapping. Keys are the
// same names used in the environment (IMGDIR, VALDIR, RESTORE, TRAIN, TEST,
// MODEL, VERSION, LAYERS, WD, MLR, EPOCHS, EVAL_END_EPOCH, BSIZE, DEVICES).
// Empty or absent values fall back to defaults. It fails with a ConfigError
// before any external process is started if a required path is missing.
func Resolve(overrides map[string]string) (RunConfig, error) {
	cfg := RunConfig{
		ImgDir:       overrides["IMGDIR"],
		ValDir:       overrides["VALDIR"],
		RestoreFrom:  overrides["RESTORE"],
		TrainList:    DefaultTrainList,
		TestList:     DefaultTestList,
		Model:        DefaultModel,
		Version:      DefaultVersion,
		Layers:       defaultLayers(),
		WeightDecay:  DefaultWeightDecay,
		MaxLR:        DefaultMaxLR,
		TrainEpochs:  DefaultTrainEpochs,
		EvalEndEpoch: DefaultEvalEndEpoch,
		BatchSize:    DefaultBatchSize,
		Devices:      DefaultDevices,
	}

	if v := overrides["TRAIN"]; v != "" {
		cfg.TrainList = v
	}
	if v := overrides["TEST"]; v != "" {
		cfg.TestList = v
	}
	if v := overrides["MODEL"]; v != "" {
		cfg.Model = v
	}
	if v := overrides["VERSION"]; v != "" {
		cfg.Version = v
	}
	if v := overrides["LAYERS"]; v != "" {
		cfg.Layers = strings.Fields(v)
	}
	if v := overrides["DEVICES"]; v != "" {
		cfg.Devices = v
	}

	var err error
	if cfg.WeightDecay, err = floatOverride(overrides, "WD", cfg.WeightDecay); err != nil {
		return RunConfig{}, err
	}
	if cfg.MaxLR, err = floatOverride(overrides, "MLR", cfg.MaxLR); err != nil {
		return RunConfig{}, err
	}
	if cfg.TrainEpochs, err = intOverride(overrides, "EPOCHS", cfg.TrainEpochs); err != nil {
		return RunConfig{}, err
	}
	if cfg.EvalEndEpoch, err = intOverride(overrides, "EVAL_END_EPOCH", cfg.EvalEndEpoch); err != nil {
		return RunConfig{}, err
	}
	if cfg.BatchSize, err = intOverride(overrides, "BSIZE", cfg.BatchSize); err != nil {
		return RunConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}

	return cfg, nil
}

// FromEnv resolves a RunConfig from the process environment. This is only
// meant for entrypoints; everything below main receives the explicit struct.
func FromEnv() (RunConfig, error) {
	var cfg RunConfig
	if err := env.Parse(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("error parsing run config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}

	return cfg, nil
}

// Validate checks that every required field has a value.
func (cfg RunConfig) Validate() error {
	var missing []string
	if cfg.ImgDir == "" {
		missing = append(missing, "IMGDIR")
	}
	if cfg.ValDir == "" {
		missing = append(missing, "VALDIR")
	}
	if cfg.RestoreFrom == "" {
		missing = append(missing, "RESTORE")
	}

	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// SnapshotSubdir is the directory, relative to the snapshot root, where the
// trainer writes its per-epoch checkpoints for this run.
func (cfg RunConfig) SnapshotSubdir() string {
	return fmt.Sprintf("%s_%s", cfg.Model, cfg.Version)
}

func floatOverride(overrides map[string]string, key string, fallback float64) (float64, error) {
	v := overrides[key]
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value '%s' for %s: %w", v, key, err)
	}
	return parsed, nil
}

func intOverride(overrides map[string]string, key string, fallback int) (int, error) {
	v := overrides[key]
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value '%s' for %s: %w", v, key, err)
	}
	return parsed, nil
}
