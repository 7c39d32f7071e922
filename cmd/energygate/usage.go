package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/internal/config"
)

var (
	usageWallet string
	usageRecord int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show or record a wallet's energy usage for today",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ledger, closer, err := openLedger(cfg.Ledger)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx := cmd.Context()
		now := time.Now()
		for i := 0; i < usageRecord; i++ {
			if err := ledger.RecordUsage(ctx, usageWallet, now); err != nil {
				return err
			}
		}

		day := core.Day(now)
		used, err := ledger.CountUsage(ctx, usageWallet, day)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wallet=%s day=%s used=%d remaining=%d\n",
			core.NormalizeWallet(usageWallet), day, used, core.RemainingEnergy(cfg.Gateway.MaxEnergy, used))
		return nil
	},
}

func init() {
	usageCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	usageCmd.Flags().StringVar(&usageWallet, "wallet", "", "wallet address")
	usageCmd.Flags().IntVar(&usageRecord, "record", 0, "number of usage records to append first")
	_ = usageCmd.MarkFlagRequired("wallet")
}
