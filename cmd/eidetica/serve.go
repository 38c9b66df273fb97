package main

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/arcuru/eidetica/log"
	"github.com/arcuru/eidetica/metrics"
	"github.com/arcuru/eidetica/sync"
	"github.com/arcuru/eidetica/syncgrpc"
)

var serveAutoApprove bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this node's sync server and metrics endpoint in the foreground",
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
		defer engine.Close()

		scheduler := sync.NewScheduler(engine, cfg)
		scheduler.Start()
		defer scheduler.Close()

		policy := sync.DenyAll
		if cfg.Sync.AutoApproveBootstrap || serveAutoApprove {
			policy = sync.AutoApprove
		}
		grantSigner, err := inst.Backend().GetPrivateKey(context.Background(), cfg.Sync.DeviceID)
		if err != nil {
			log.Logger.Warn().Msg("no local signing key for this node's device ID; bootstrap grants into authenticated databases will fail")
		}
		bootstrapper := sync.NewBootstrapper(inst, ed25519.PrivateKey(grantSigner), policy)

		server := syncgrpc.NewServer(engine, bootstrapper, tlsConfig)

		if cfg.MetricsAddr != "" {
			if source, ok := inst.Backend().(metrics.StateSource); ok {
				collector := metrics.NewCollector(source)
				collector.Start()
				defer collector.Stop()
			}
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				log.Logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					log.Logger.Error().Err(err).Msg("metrics server stopped")
				}
			}()
		}

		fmt.Printf("Serving on %s\n", cfg.ListenAddr)
		return server.Serve(cfg.ListenAddr)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveAutoApprove, "auto-approve-bootstrap", false, "grant every incoming access request immediately")
}
