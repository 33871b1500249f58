package main

import (
	"context"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/proofchain/proofapi/libs/log"
	"github.com/proofchain/proofapi/proof"
	providerhttp "github.com/proofchain/proofapi/proof/provider/http"
	"github.com/proofchain/proofapi/rpc"
	"github.com/proofchain/proofapi/version"
)

// NewRunCommand returns the command that runs the proof API node.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the proof API node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateBasic(); err != nil {
				return err
			}

			logger, err := log.NewDefaultLogger(cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			source, err := providerhttp.NewWithClient(cfg.Provider.Remote,
				&nethttp.Client{Timeout: cfg.Provider.Timeout})
			if err != nil {
				return err
			}

			metrics := proof.NopMetrics()
			if cfg.Instrumentation.Prometheus {
				metrics = proof.PrometheusMetrics(cfg.Instrumentation.Namespace)
			}

			builder := proof.NewBuilder(logger.With("module", "proof"), source, proof.BuilderOptions{
				NetworkID:     cfg.Proof.NetworkID,
				MaxHops:       cfg.Proof.MaxHops,
				RequireTxHash: cfg.Proof.RequireTxHash,
				FetchAttempts: cfg.Proof.FetchAttempts,
				RetryDelay:    cfg.Proof.RetryDelay,
				Metrics:       metrics,
			})

			cache := proof.NewCache(logger.With("module", "cache"), builder.BuildProofChain, proof.CacheOptions{
				NetworkID:     cfg.Proof.NetworkID,
				TTL:           cfg.Cache.TTL,
				SweepInterval: cfg.Cache.SweepInterval,
				BuildTimeout:  cfg.Cache.BuildTimeout,
				Metrics:       metrics,
			})

			server := rpc.NewServer(logger.With("module", "rpc"), cache, rpc.ServerConfig{
				ListenAddr: cfg.RPC.ListenAddr,
				Version:    version.Version,
				RateLimit:  cfg.RPC.RateLimit,
				RateBurst:  cfg.RPC.RateBurst,
				Whitelist:  cfg.RPC.Whitelist,
				Metrics:    cfg.Instrumentation.Prometheus,
			})

			if err := cache.Start(ctx); err != nil {
				return err
			}
			if err := server.Start(ctx); err != nil {
				return err
			}

			logger.Info("proof api started",
				"version", version.Version,
				"network", cfg.Proof.NetworkID,
				"provider", source.String())

			<-ctx.Done()
			logger.Info("shutting down")
			_ = server.Stop()
			_ = cache.Stop()
			return nil
		},
	}
}
