package main

import (
	"fmt"
	"log"
	"os"

	"github.com/depotfs/depot/internal/api"
	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/backend/fs"
	"github.com/depotfs/depot/internal/backend/s3"
	"github.com/depotfs/depot/internal/backend/sftp"
	"github.com/depotfs/depot/internal/config"
	"github.com/depotfs/depot/internal/dispatch"
	"github.com/depotfs/depot/internal/job"
	"github.com/depotfs/depot/internal/model"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("depot: starting",
		"listen_addr", cfg.ListenAddr,
		"backends_file", cfg.BackendsFile,
		"pool_ceiling", cfg.PoolCeiling,
	)

	backendCfgs, err := config.LoadBackends(cfg.BackendsFile)
	if err != nil {
		log.Fatalf("failed to load backends: %v", err)
	}

	reg, err := buildBackends(backendCfgs, backend.Settings{
		ChunkSize:         cfg.ChunkSize,
		MaxRenameAttempts: cfg.MaxRenameAttempts,
	})
	if err != nil {
		log.Fatalf("failed to build backends: %v", err)
	}

	jobs := job.NewRegistry()
	facade := dispatch.New(jobs, reg, cfg.PoolCeiling, cfg.DefaultTimeout, logger)
	defer facade.Close()

	srv := api.NewServer(cfg.ListenAddr, facade, reg, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildBackends constructs one capability per declared backend and
// registers it under its tag.
func buildBackends(cfgs []model.BackendConfig, settings backend.Settings) (*backend.Registry, error) {
	reg := backend.NewRegistry()
	for _, bc := range cfgs {
		var (
			impl backend.Capability
			err  error
		)
		switch bc.Kind {
		case model.KindFS:
			impl, err = fs.New(bc.Tag, bc.Params, settings)
		case model.KindSFTP:
			impl, err = sftp.New(bc.Tag, bc.Params, settings)
		case model.KindS3:
			impl, err = s3.New(bc.Tag, bc.Params, settings)
		default:
			err = fmt.Errorf("unknown kind %q", bc.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", bc.Tag, err)
		}
		reg.Register(bc.Tag, bc.Kind, impl)
	}
	return reg, nil
}
