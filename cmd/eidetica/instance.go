package main

import (
	"path/filepath"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/backend"
	"github.com/arcuru/eidetica/config"
	"github.com/arcuru/eidetica/log"
)

// loadConfig reads the config file at --config, falling back to defaults.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// openInstance opens the BoltDB backend at cfg's data dir and wraps it in
// an Instance, ready for database creation/open calls. The caller is
// responsible for calling Close on the returned Instance.
func openInstance(cfg *config.Config) (*eidetica.Instance, error) {
	log.Init(log.Config{Level: log.Level(cfg.LogLevel)})

	dbPath := filepath.Join(cfg.DataDir, "eidetica.db")
	b, err := backend.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return eidetica.NewInstance(b), nil
}
