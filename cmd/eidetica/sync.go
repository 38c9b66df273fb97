package main

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcuru/eidetica/sync"
	"github.com/arcuru/eidetica/syncgrpc"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage sync peers for this node",
}

var (
	syncAddPeerID      string
	syncAddPeerAddress string
)

var syncAddPeerCmd = &cobra.Command{
	Use:   "add-peer",
	Short: "Register a peer and perform its initial handshake",
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

		var tlsConfig *tls.Config
		transport := syncgrpc.NewClient(tlsConfig)
		engine := sync.NewEngine(inst.Backend(), transport, cfg.Sync.DeviceID, cfg.Sync.DeviceID)
		inst.SetSyncer(engine)

		ctx := context.Background()
		peer := &sync.Peer{ID: syncAddPeerID, Address: syncAddPeerAddress}
		if err := engine.AddPeer(ctx, peer); err != nil {
			return fmt.Errorf("add peer: %w", err)
		}
		fmt.Printf("Added peer %s at %s\n", peer.ID, peer.Address)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show this node's sync configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Device ID: %s\n", cfg.Sync.DeviceID)
		fmt.Printf("Listen addr: %s\n", cfg.ListenAddr)
		fmt.Printf("Auto-approve bootstrap: %v\n", cfg.Sync.AutoApproveBootstrap)
		return nil
	},
}

func init() {
	syncAddPeerCmd.Flags().StringVar(&syncAddPeerID, "id", "", "peer ID")
	syncAddPeerCmd.Flags().StringVar(&syncAddPeerAddress, "address", "", "peer gRPC address (host:port)")
}
