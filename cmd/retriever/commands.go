package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/domain"
)

func newRebuildCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the enabled sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Index.RebuildTimeoutSec > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Index.RebuildTimeoutSec)*time.Second)
				defer cancel()
			}

			report, err := a.engine.Rebuild(ctx)
			if report.BuildID != "" {
				if werr := writeIndented(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			}
			if err != nil {
				if errors.Is(err, domain.ErrRebuildFailed) {
					logger.Error("Rebuild failed", zap.String("summary", report.Summary))
				}
				return err
			}
			return nil
		},
	}
}

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var (
		k         int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Query the committed index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Load(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("k") {
				k = cfg.Query.K
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Query.MinSimilarity()
			}

			ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Query.TimeoutSec)*time.Second)
			defer cancel()

			results, err := a.engine.Query(ctx, args[0], k, threshold)
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "maximum number of passages")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "minimum similarity in [0, 1]")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Describe the committed index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Load(); err != nil {
				logger.Warn("Index unavailable", zap.Error(err))
			}
			return writeIndented(cmd.OutOrStdout(), a.engine.Status())
		},
	}
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
