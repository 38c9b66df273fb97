package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crypto"
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage databases on this node",
}

var databaseCreateName string

var databaseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new database, owned by a freshly generated signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		inst, err := openInstance(cfg)
		if err != nil {
			return err
		}
		defer inst.Close()

		ctx := context.Background()
		_, priv, err := crypto.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("generate signing key: %w", err)
		}

		settings := eidetica.NewSettings()
		settings.Name = databaseCreateName
		db, err := inst.CreateDatabase(ctx, priv, settings)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}

		pub := crypto.PubKeyFromPrivate(priv)
		if err := inst.Backend().StorePrivateKey(ctx, pub, priv); err != nil {
			return fmt.Errorf("persist signing key: %w", err)
		}

		fmt.Printf("Created database %s\n", db.RootID)
		fmt.Printf("Owner key: %s\n", pub)
		return nil
	},
}

var databaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every database known to this node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		inst, err := openInstance(cfg)
		if err != nil {
			return err
		}
		defer inst.Close()

		ctx := context.Background()
		roots, err := inst.AllDatabases(ctx)
		if err != nil {
			return fmt.Errorf("list databases: %w", err)
		}
		for _, root := range roots {
			db, err := inst.OpenDatabase(ctx, root, nil)
			if err != nil {
				continue
			}
			settings, err := db.CurrentSettings(ctx)
			name := ""
			if err == nil {
				name = settings.Name
			}
			fmt.Printf("%s  %s\n", root, name)
		}
		return nil
	},
}

func init() {
	databaseCreateCmd.Flags().StringVar(&databaseCreateName, "name", "", "display name for the new database")
}
