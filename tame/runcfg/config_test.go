package runcfg_test

import (
	"errors"
	"reflect"
	"testing"

	"tame/tame/runcfg"
)

func requiredOverrides() map[string]string {
	return map[string]string{
		"IMGDIR":  "/data/train",
		"VALDIR":  "/data/val",
		"RESTORE": "/snapshots/resnet50_TAME",
	}
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := runcfg.Resolve(requiredOverrides())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ImgDir != "/data/train" || cfg.ValDir != "/data/val" || cfg.RestoreFrom != "/snapshots/resnet50_TAME" {
		t.Fatalf("required fields not carried over: %+v", cfg)
	}

	if cfg.TrainList != "Fungal_train.txt" ||
		cfg.TestList != "Fungal_eval.txt" ||
		cfg.Model != "resnet50" ||
		cfg.Version != "TAME" ||
		cfg.WeightDecay != 5e-4 ||
		cfg.MaxLR != 1e-2 ||
		cfg.TrainEpochs != 8 ||
		cfg.EvalEndEpoch != 32 ||
		cfg.BatchSize != 32 ||
		cfg.Devices != "0" {
		t.Fatalf("incorrect defaults: %+v", cfg)
	}

	if !reflect.DeepEqual(cfg.Layers, []string{"layer2", "layer3", "layer4"}) {
		t.Fatalf("incorrect default layers: %v", cfg.Layers)
	}
}

func TestResolveOverridesTakePrecedence(t *testing.T) {
	overrides := requiredOverrides()
	overrides["TRAIN"] = "custom.txt"
	overrides["TEST"] = "custom_eval.txt"
	overrides["MODEL"] = "vgg16"
	overrides["VERSION"] = "TAME-B"
	overrides["LAYERS"] = "features.29"
	overrides["WD"] = "1e-3"
	overrides["MLR"] = "0.1"
	overrides["EPOCHS"] = "16"
	overrides["EVAL_END_EPOCH"] = "24"
	overrides["BSIZE"] = "64"
	overrides["DEVICES"] = "1"

	cfg, err := runcfg.Resolve(overrides)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.TrainList != "custom.txt" ||
		cfg.TestList != "custom_eval.txt" ||
		cfg.Model != "vgg16" ||
		cfg.Version != "TAME-B" ||
		cfg.WeightDecay != 1e-3 ||
		cfg.MaxLR != 0.1 ||
		cfg.TrainEpochs != 16 ||
		cfg.EvalEndEpoch != 24 ||
		cfg.BatchSize != 64 ||
		cfg.Devices != "1" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	if !reflect.DeepEqual(cfg.Layers, []string{"features.29"}) {
		t.Fatalf("layer override not applied: %v", cfg.Layers)
	}
}

func TestEpochOverrideLeavesEvalEndEpochAlone(t *testing.T) {
	// The two epoch fields are deliberately independent: bumping the training
	// epoch count must not move the evaluation sweep end.
	overrides := requiredOverrides()
	overrides["TRAIN"] = "custom.txt"
	overrides["EPOCHS"] = "16"

	cfg, err := runcfg.Resolve(overrides)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.TrainList != "custom.txt" || cfg.TrainEpochs != 16 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.EvalEndEpoch != 32 {
		t.Fatalf("eval end epoch changed by EPOCHS override: %d", cfg.EvalEndEpoch)
	}
}

func TestResolveMissingRequired(t *testing.T) {
	cases := []struct {
		unset   []string
		missing []string
	}{
		{unset: []string{"IMGDIR"}, missing: []string{"IMGDIR"}},
		{unset: []string{"VALDIR"}, missing: []string{"VALDIR"}},
		{unset: []string{"RESTORE"}, missing: []string{"RESTORE"}},
		{unset: []string{"IMGDIR", "VALDIR", "RESTORE"}, missing: []string{"IMGDIR", "VALDIR", "RESTORE"}},
	}

	for _, c := range cases {
		overrides := requiredOverrides()
		for _, key := range c.unset {
			delete(overrides, key)
		}

		_, err := runcfg.Resolve(overrides)

		var cfgErr *runcfg.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigError when %v unset, got %v", c.unset, err)
		}
		if !reflect.DeepEqual(cfgErr.Missing, c.missing) {
			t.Fatalf("expected missing %v, got %v", c.missing, cfgErr.Missing)
		}
	}
}

func TestResolveAllRequiredPresentSucceeds(t *testing.T) {
	if _, err := runcfg.Resolve(requiredOverrides()); err != nil {
		t.Fatalf("resolve failed with all required fields present: %v", err)
	}
}

func TestResolveEmptyValueFallsBackToDefault(t *testing.T) {
	overrides := requiredOverrides()
	overrides["TRAIN"] = ""
	overrides["EPOCHS"] = ""

	cfg, err := runcfg.Resolve(overrides)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.TrainList != "Fungal_train.txt" || cfg.TrainEpochs != 8 {
		t.Fatalf("empty overrides should fall back to defaults: %+v", cfg)
	}
}

func TestResolveRejectsMalformedNumbers(t *testing.T) {
	for _, key := range []string{"WD", "MLR", "EPOCHS", "EVAL_END_EPOCH", "BSIZE"} {
		overrides := requiredOverrides()
		overrides[key] = "not-a-number"

		if _, err := runcfg.Resolve(overrides); err == nil {
			t.Fatalf("expected error for malformed %s", key)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("IMGDIR", "/data/train")
	t.Setenv("VALDIR", "/data/val")
	t.Setenv("RESTORE", "/snapshots/resnet50_TAME")
	t.Setenv("LAYERS", "layer3 layer4")
	t.Setenv("BSIZE", "128")

	cfg, err := runcfg.FromEnv()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ImgDir != "/data/train" || cfg.BatchSize != 128 || cfg.Model != "resnet50" {
		t.Fatalf("incorrect config from env: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Layers, []string{"layer3", "layer4"}) {
		t.Fatalf("incorrect layers from env: %v", cfg.Layers)
	}
}

func TestFromEnvMissingRequired(t *testing.T) {
	t.Setenv("IMGDIR", "/data/train")

	_, err := runcfg.FromEnv()

	var cfgErr *runcfg.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestSnapshotSubdir(t *testing.T) {
	cfg, err := runcfg.Resolve(requiredOverrides())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SnapshotSubdir() != "resnet50_TAME" {
		t.Fatalf("incorrect snapshot subdir: %s", cfg.SnapshotSubdir())
	}
}
