package cmd

import (
	"context"
	"fmt"
	"os"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/cli/config"
	"github.com/pithecene-io/ordo/lode"
)

// storageChoice holds resolved result store configuration.
type storageChoice struct {
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

func resolveStorage(c *cli.Context, cfg *config.Config) storageChoice {
	sc := configVal(cfg, func(c *config.Config) config.StorageConfig { return c.Storage })
	s := storageChoice{
		backend:   resolveString(c, "storage-backend", sc.Backend),
		path:      resolveString(c, "storage-path", sc.Path),
		dataset:   resolveString(c, "storage-dataset", sc.Dataset),
		region:    resolveString(c, "storage-region", sc.Region),
		endpoint:  resolveString(c, "storage-endpoint", sc.Endpoint),
		pathStyle: resolveBool(c, "storage-s3-path-style", sc.S3PathStyle),
	}
	if s.backend == "" {
		s.backend = "fs"
	}
	if s.dataset == "" {
		s.dataset = lode.DefaultDataset
	}
	return s
}

// enabled reports whether results are persisted at all.
func (s storageChoice) enabled() bool {
	return s.path != ""
}

func (s storageChoice) validate() error {
	switch s.backend {
	case "fs", "s3":
		return nil
	default:
		return fmt.Errorf("invalid --storage-backend %q (must be fs or s3)", s.backend)
	}
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// openClient creates a write client for the configured backend.
func openClient(ctx context.Context, s storageChoice, cfg lode.Config) (*lode.LodeClient, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	cfg.Dataset = s.dataset
	if s.backend == "s3" {
		return lode.NewLodeS3Client(ctx, cfg, s.s3Config())
	}
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return lode.NewLodeClient(cfg, s.path)
}

// openReadDataset creates a read dataset for the configured backend.
func openReadDataset(ctx context.Context, s storageChoice) (lodelib.Dataset, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.backend == "s3" {
		return lode.NewReadDatasetS3(ctx, s.dataset, s.s3Config())
	}
	return lode.NewReadDatasetFS(s.dataset, s.path)
}
