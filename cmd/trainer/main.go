// SafeAlign trainer entrypoint.
// Wires configuration, observability, infrastructure adapters, and the
// distributed backend, then runs constrained PPO training to completion.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/safealign/safealign/internal/infrastructure/message/kafka"
	"github.com/safealign/safealign/internal/infrastructure/repository/postgres"
	miniostore "github.com/safealign/safealign/internal/infrastructure/storage/minio"
	"github.com/safealign/safealign/internal/observability/logging"
	"github.com/safealign/safealign/internal/observability/metrics"
	"github.com/safealign/safealign/internal/observability/trace"
	"github.com/safealign/safealign/internal/platform/dist"
	"github.com/safealign/safealign/internal/platform/model"
	"github.com/safealign/safealign/internal/platform/training"
	"github.com/safealign/safealign/internal/platform/training/ppolag"
	"github.com/safealign/safealign/pkg/config"
	"github.com/safealign/safealign/pkg/errors"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:     "safealign-trainer",
		Short:   "Safety-constrained PPO trainer",
		Long:    "Trains a policy with Lagrangian PPO: rewards are maximized while expected episode cost is driven below a configurable threshold.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to configuration file")
	return cmd
}

func run(configFile string) error {
	loader := config.NewLoader(config.LoaderOptions{
		ConfigFile:  configFile,
		EnableWatch: true,
	})
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.Noop()
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.CollectorConfig{
			EnableGoMetrics:      true,
			EnableProcessMetrics: true,
		})
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", logging.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	tracer := trace.NewNoopTracer()
	if cfg.Tracing.Enabled {
		tracer, err = trace.NewTracer(trace.TracerConfig{
			ServiceName:    "safealign-trainer",
			ServiceVersion: version,
			Endpoint:       cfg.Tracing.Endpoint,
			SamplingRate:   cfg.Tracing.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer tracer.Shutdown(context.Background())
	}

	var publisher training.StepPublisher
	if cfg.Kafka.Enabled {
		publisher, err = kafka.NewPublisher(kafka.PublisherConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	var ckptSink training.CheckpointSink
	if cfg.Storage.Enabled {
		ckptSink, err = miniostore.NewCheckpointStore(ctx, miniostore.StoreConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
			Bucket:          cfg.Storage.Bucket,
		})
		if err != nil {
			return err
		}
	}

	var runs training.RunRecorder
	if cfg.Database.Enabled {
		runs, err = postgres.NewRunRepository(cfg.Database.DSN)
		if err != nil {
			return err
		}
	}

	loaderFn, ok := model.GetLoader(cfg.Model.Loader)
	if !ok {
		return errors.NewFromCode(errors.ErrModelLoaderUnknown).
			WithDetails("loader", cfg.Model.Loader)
	}

	runID := uuid.NewString()
	worldSize := cfg.Distributed.WorldSize

	startWorker := func(ctx context.Context, backend dist.Backend) error {
		models, err := loaderFn(ctx, model.LoaderOptions{
			ActorPath:        cfg.Model.ActorPath,
			RewardPath:       cfg.Model.RewardPath,
			RewardCriticPath: cfg.Model.RewardCriticPath,
			CostPath:         cfg.Model.CostPath,
			CostCriticPath:   cfg.Model.CostCriticPath,
		})
		if err != nil {
			return err
		}

		prompts, err := training.NewTextPromptSourceFromFile(
			cfg.Data.PromptFile,
			models.Actor.Tokenizer(),
			cfg.Train.PerDevicePromptBatchSize,
			cfg.Data.Shuffle,
			cfg.Run.Seed+int64(backend.Rank()),
		)
		if err != nil {
			return err
		}

		trainer, err := ppolag.NewTrainer(ppolag.Options{
			Config:         cfg,
			Models:         models,
			Backend:        backend,
			Prompts:        prompts,
			Logger:         logger,
			Metrics:        collector,
			Tracer:         tracer,
			Publisher:      publisher,
			CheckpointSink: ckptSink,
			RunRecorder:    runs,
			RunID:          runID,
		})
		if err != nil {
			return err
		}

		loader.OnReload(func(old, next *config.Config) {
			if old == nil || next.Lambda.Threshold != old.Lambda.Threshold {
				trainer.SetCostThreshold(next.Lambda.Threshold)
				logger.Info("cost threshold updated",
					logging.Float64("threshold", next.Lambda.Threshold))
			}
		})

		return trainer.Train(ctx)
	}

	if worldSize <= 1 {
		return startWorker(ctx, dist.NewLocalBackend())
	}

	group := dist.NewGroup(worldSize)
	eg, egCtx := errgroup.WithContext(ctx)
	for rank := 0; rank < worldSize; rank++ {
		backend, err := group.Worker(rank)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return startWorker(egCtx, backend)
		})
	}
	return eg.Wait()
}
