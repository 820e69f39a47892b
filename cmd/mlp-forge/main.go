package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauspost/cpuid/v2"

	"mlp-forge/internal/config"
	"mlp-forge/internal/dataset"
	"mlp-forge/internal/trainer"
)

// Keys without a flag (test_batch_size, hidden_dims, shuffle, download and
// the remaining optimizer knobs) are set through -config.
func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	dataDir := flag.String("data-dir", "", "Override dataset cache directory")
	source := flag.String("source", "", "Override dataset source (idx or shards)")
	trainShards := flag.String("train-shards", "", "Override training shard root")
	testShards := flag.String("test-shards", "", "Override test shard root")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	batchSize := flag.Int("batch-size", 0, "Training batch size")
	lr := flag.Float64("lr", 0, "Learning rate")
	momentum := flag.Float64("momentum", 0, "SGD momentum")
	numWorkers := flag.Int("num-workers", 0, "Number of batch prefetch workers")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Report progress every N batches")
	checkpoint := flag.String("checkpoint", "", "Write trained parameters to this file")
	initFrom := flag.String("init-from", "", "Load initial parameters from this checkpoint")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:      *dataDir,
		Source:       *source,
		TrainShards:  *trainShards,
		TestShards:   *testShards,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		LearningRate: *lr,
		Momentum:     *momentum,
		NumWorkers:   *numWorkers,
		Seed:         *seed,
		LogEvery:     *logEvery,
		Checkpoint:   *checkpoint,
		InitFrom:     *initFrom,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	log.Printf("cpu=%q cores=%d workers=%d", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cfg.NumWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trainSet, testSet, err := loadDatasets(ctx, cfg)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}

	seedU := uint64(cfg.Seed)
	trainLoader, err := dataset.NewLoader(trainSet, dataset.LoaderOptions{
		BatchSize:  cfg.TrainBatchSize,
		Shuffle:    cfg.Shuffle,
		Seed:       seedU,
		NumWorkers: cfg.NumWorkers,
		Normalize:  dataset.MNISTNormalize,
	})
	if err != nil {
		log.Fatalf("train loader: %v", err)
	}
	testLoader, err := dataset.NewLoader(testSet, dataset.LoaderOptions{
		BatchSize:  cfg.TestBatchSize,
		Seed:       seedU,
		NumWorkers: cfg.NumWorkers,
		Normalize:  dataset.MNISTNormalize,
	})
	if err != nil {
		log.Fatalf("test loader: %v", err)
	}

	runCfg := trainer.RunConfig{
		Train:        trainLoader,
		Test:         testLoader,
		HiddenDims:   cfg.HiddenDims,
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		Momentum:     cfg.Momentum,
		Dampening:    cfg.Dampening,
		WeightDecay:  cfg.WeightDecay,
		Nesterov:     cfg.Nesterov,
		LogEvery:     cfg.LogEvery,
		Seed:         cfg.Seed,
		Out:          os.Stdout,
		Checkpoint:   cfg.Checkpoint,
		InitFrom:     cfg.InitFrom,
	}

	if _, err := trainer.Run(ctx, runCfg); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

func loadDatasets(ctx context.Context, cfg *config.Config) (train, test *dataset.Dataset, err error) {
	if cfg.Source == config.SourceShards {
		if train, err = dataset.LoadShards(ctx, cfg.TrainShards, 28, 28); err != nil {
			return nil, nil, err
		}
		if test, err = dataset.LoadShards(ctx, cfg.TestShards, 28, 28); err != nil {
			return nil, nil, err
		}
		return train, test, nil
	}

	opts := dataset.MNISTOptions{Root: cfg.DataDir, Download: cfg.Download}
	if train, err = dataset.LoadMNIST(ctx, opts, true); err != nil {
		return nil, nil, err
	}
	if test, err = dataset.LoadMNIST(ctx, opts, false); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
