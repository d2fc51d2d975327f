package runcfg

import (
	"strconv"
	"strings"
)

// TrainArgs projects the config into the argument list of the external
// trainer. The layer list is forwarded as a single space-separated token
// because the trainer splits it itself.
func (cfg RunConfig) TrainArgs() []string {
	return []string{
		"--img-dir", cfg.ImgDir,
		"--restore-from", cfg.RestoreFrom,
		"--train-list", cfg.TrainList,
		"--num-workers", strconv.Itoa(NumWorkers),
		"--model", cfg.Model,
		"--version", cfg.Version,
		"--layers", strings.Join(cfg.Layers, " "),
		"--wd", formatFloat(cfg.WeightDecay),
		"--max-lr", formatFloat(cfg.MaxLR),
		"--epoch", strconv.Itoa(cfg.TrainEpochs),
		"--batch-size", strconv.Itoa(cfg.BatchSize),
	}
}

// EvalArgs projects the config into the argument list of the external
// evaluator. Evaluation always starts at epoch 1 and sweeps checkpoints up to
// EvalEndEpoch.
func (cfg RunConfig) EvalArgs() []string {
	return []string{
		"--val-dir", cfg.ValDir,
		"--restore-from", cfg.RestoreFrom,
		"--test-list", cfg.TestList,
		"--num-workers", strconv.Itoa(NumWorkers),
		"--model", cfg.Model,
		"--version", cfg.Version,
		"--layers", strings.Join(cfg.Layers, " "),
		"--start-epoch", strconv.Itoa(StartEpoch),
		"--end-epoch", strconv.Itoa(cfg.EvalEndEpoch),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
