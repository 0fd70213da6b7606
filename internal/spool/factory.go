package spool

import (
	"fmt"

	"coursesync/internal/config"
	"coursesync/internal/ingest"
)

// NewSpoolFromConfig creates a Spool implementation based on the config type.
func NewSpoolFromConfig(cfg config.SpoolConfig) (ingest.Spool, error) {
	switch cfg.Type {
	case "memory":
		return NewMemorySpool(), nil
	case "filesystem":
		if cfg.SpoolDir == "" {
			return nil, fmt.Errorf("filesystem spool requires spool_dir to be set")
		}
		return NewFileSystemSpool(cfg.SpoolDir)
	default:
		return nil, fmt.Errorf("unknown spool type: %s", cfg.Type)
	}
}
