package cmd

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"qcpack/internal/backend"
	"qcpack/internal/circuit"
	"qcpack/internal/config"
	"qcpack/internal/database"
	"qcpack/internal/logging"
	"qcpack/internal/manager"
	"qcpack/internal/packer"
)

func runPack(ctx context.Context, configFile string) error {
	logger := logging.GetLogger()

	cfg, configContent, err := config.LoadConfigWithContent(configFile)
	if err != nil {
		return err
	}
	if cfg.Run.LogLevel != "" {
		if err := logging.SetLogLevel(cfg.Run.LogLevel); err != nil {
			return err
		}
		if err := logging.SetPackerLogLevel(cfg.Run.LogLevel); err != nil {
			return err
		}
	}

	backends := make([]*backend.Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		be, err := b.Build()
		if err != nil {
			return err
		}
		backends = append(backends, be)
	}
	circuits := make([]*circuit.Circuit, 0, len(cfg.Circuits))
	for _, c := range cfg.Circuits {
		built, err := c.Build()
		if err != nil {
			return err
		}
		circuits = append(circuits, built)
	}

	pk, err := packer.New(cfg.Run.Packer.Implementation, cfg.Run.Packer.Options(), logging.GetPackerLogger())
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"run":      cfg.Run.Name,
		"packer":   cfg.Run.Packer.Implementation,
		"backends": len(backends),
		"circuits": len(circuits),
	}).Info("Starting packing run")

	started := time.Now()
	result, err := manager.Rearrange(ctx, circuits, backends, manager.RearrangeOptions{
		Packer:       pk,
		AllowReorder: cfg.Run.Packer.AllowReorder,
		Logger:       logging.GetPackerLogger(),
	})
	if err != nil {
		return err
	}
	finished := time.Now()

	if err := manager.Describe(os.Stdout, result); err != nil {
		return err
	}

	if cfg.Run.Data.DB.Enabled() {
		recordRun(cfg, configContent, result, started, finished)
	}

	logger.WithField("duration", finished.Sub(started).String()).Info("Packing run finished")
	return nil
}

// recordRun writes the run to InfluxDB, spooling to disk when the
// database is unreachable. Recording never fails the run.
func recordRun(cfg *config.RunConfig, configContent string, result *manager.Result, started, finished time.Time) {
	logger := logging.GetLogger()

	run := database.NewRunRecord(cfg.Run.Name, cfg.Run.Packer.Implementation, configContent, result, started, finished)
	placements, err := database.Placements(run, result)
	if err != nil {
		logger.WithError(err).Error("Failed to build placement records")
		return
	}

	client, err := database.NewInfluxDBClient(cfg.Run.Data.DB)
	if err == nil {
		defer client.Close()
		if err := client.WriteRunMetadata(run); err == nil {
			if err := client.WritePlacements(placements); err != nil {
				logger.WithError(err).Error("Failed to write placement points")
			} else {
				logger.WithField("run_id", run.RunID).Info("Recorded packing run")
				return
			}
		} else {
			logger.WithError(err).Error("Failed to write run metadata")
		}
	}

	artifact := database.BuildSpoolArtifact(run, placements)
	path, spoolErr := database.WriteSpoolArtifact("", artifact)
	if spoolErr != nil {
		logger.WithError(spoolErr).Error("Failed to spool packing run")
		return
	}
	logger.WithField("path", path).Warn("Database unavailable, spooled packing run to disk")
}
