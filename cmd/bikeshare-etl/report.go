package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/bikeshare-etl/internal/adapter/postgres"
	"github.com/couchcryptid/bikeshare-etl/internal/config"
	"github.com/couchcryptid/bikeshare-etl/internal/domain"
	"github.com/couchcryptid/bikeshare-etl/internal/observability"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print yearly ride counts using the read-only role",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		ep, err := resolveEndpoint(ctx, cfg, logger)
		if err != nil {
			return err
		}

		db, err := postgres.Open(ctx, postgres.ConnConfig{
			Endpoint: ep,
			User:     cfg.ROUser,
			Password: cfg.ROPassword,
			SSLMode:  cfg.PGSSLMode,
		}, logger, observability.NewMetrics())
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := db.YearlyRideCounts(ctx)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), counts)
	},
}

func resolveEndpoint(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.Endpoint, error) {
	if !cfg.ProvisionDatabase() {
		return configuredEndpoint(cfg), nil
	}
	prov, err := newProvisioner(cfg, logger)
	if err != nil {
		return domain.Endpoint{}, err
	}
	return prov.Endpoint(ctx)
}

// writeReport prints one line per year with a column per rider category.
func writeReport(w io.Writer, counts []postgres.RideCount) error {
	type yearRow struct {
		byCategory map[string]int64
		total      int64
	}
	years := map[int]*yearRow{}
	categories := map[string]bool{}
	for _, c := range counts {
		row, ok := years[c.Year]
		if !ok {
			row = &yearRow{byCategory: map[string]int64{}}
			years[c.Year] = row
		}
		cat := c.MemberCasual
		if cat == "" {
			cat = "unknown"
		}
		row.byCategory[cat] += c.Rides
		row.total += c.Rides
		categories[cat] = true
	}

	var cats []string
	for c := range categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	var order []int
	for y := range years {
		order = append(order, y)
	}
	sort.Ints(order)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "year\t")
	for _, c := range cats {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw, "total\t")

	for _, y := range order {
		row := years[y]
		fmt.Fprintf(tw, "%d\t", y)
		for _, c := range cats {
			fmt.Fprintf(tw, "%d\t", row.byCategory[c])
		}
		fmt.Fprintf(tw, "%d\t\n", row.total)
	}
	return tw.Flush()
}
