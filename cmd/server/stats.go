package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/worklog/internal/config"
	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/stats"
	"github.com/ashureev/worklog/internal/store"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print worked hours for a day plus the daily average and record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			repo, err := store.NewSQLite(cfg.DBPath, cfg.Location)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = repo.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			day := time.Now().In(cfg.Location)
			if date != "" {
				if day, err = domain.ParseWireDate(date, cfg.Location); err != nil {
					return err
				}
			}

			agg := stats.NewAggregator(repo, cfg.Location)
			out := cmd.OutOrStdout()

			chart, err := agg.DayChart(ctx, day)
			switch {
			case errors.Is(err, stats.ErrNoData):
				_, _ = fmt.Fprintf(out, "%s: no data\n", domain.DayKey(day, cfg.Location))
			case err != nil:
				return err
			default:
				_, _ = fmt.Fprintf(out, "%s: %.2f hours worked, %.2f remaining\n",
					domain.DayKey(day, cfg.Location), chart.WorkedHours, chart.RemainingHours)
			}

			summary, err := agg.Summary(ctx)
			if err != nil {
				return err
			}
			count, err := repo.CountIntervals(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Highest score: %.2f hours.\nDaily average work: %.2f hours.\nIntervals: %d\n",
				summary.MaxDailyHours, summary.AverageDailyHours, count)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report, YYYY-MM-DD (default today)")
	return cmd
}
