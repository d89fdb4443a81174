package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/app"
	"github.com/anoixa/image-resizer/internal/backfill"
	"github.com/anoixa/image-resizer/internal/resizer"
	"github.com/spf13/cobra"
)

// backfillCmd 补齐缺失的派生图
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Generate missing thumbnails for every configured target size",
	Long: `Scan all original images and generate any missing derived image for
every configured target size. Undecodable originals get an ERROR placeholder
so the next run does not pick them up again.

Examples:
  # Backfill all configured sizes
  image-resizer backfill

  # Only the small and medium presets
  image-resizer backfill --size small --size medium`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sizes, _ := cmd.Flags().GetStringSlice("size")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		return runBackfill(cmd.Context(), sizes, pageSize)
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().StringSlice("size", nil, "Target size to backfill (small, medium, large); repeatable, defaults to configured sizes")
	backfillCmd.Flags().Int("page-size", 0, "Originals fetched per page, defaults to backfill_page_size")
}

func runBackfill(ctx context.Context, sizes []string, pageSize int) error {
	cfg := config.Get()
	if pageSize > 0 {
		cfg.BackfillPageSize = pageSize
	}

	container := app.NewContainer(cfg)
	if err := container.Init(); err != nil {
		return err
	}
	defer container.Close()

	targets := container.GetTargets()
	if len(sizes) > 0 {
		selected, err := models.ParseTargetSizes(sizes)
		if err != nil {
			return err
		}
		targets = selected
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := backfill.NewReconciler(container.GetDatabaseProvider(), resizer.New(cfg.GetCodecConcurrency()), targets, cfg.BackfillPageSize)
	reports, err := reconciler.Run(ctx)
	printReports(reports)
	return err
}

func printReports(reports []backfill.Report) {
	fmt.Println("\n========== Backfill Summary ==========")
	for _, r := range reports {
		fmt.Printf("%-8s pages=%d generated=%d sentinels=%d skipped=%d failed=%d (%s)\n",
			r.Size, r.Pages, r.Generated, r.Sentinels, r.Skipped, r.Failed, r.Duration.Round(1e6))
	}
	fmt.Println("======================================")
}
