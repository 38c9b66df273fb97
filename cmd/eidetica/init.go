package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arcuru/eidetica/config"
	"github.com/arcuru/eidetica/crypto"
)

var initDataDir string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new eidetica node's data directory and config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		cfg.DataDir = initDataDir

		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		_, priv, err := crypto.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("generate device key: %w", err)
		}
		cfg.Sync.DeviceID = crypto.PubKeyFromPrivate(priv)

		path := configPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "config.yaml")
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		fmt.Printf("Initialized eidetica node in %s\n", cfg.DataDir)
		fmt.Printf("Device ID: %s\n", cfg.Sync.DeviceID)
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "./eidetica-data", "directory to store node data")
}
