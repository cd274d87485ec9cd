package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"affrollup/internal/domain"
	"affrollup/internal/usecase"
	"affrollup/pkg/config"
	"affrollup/pkg/logger"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type reportFlags struct {
	transactions string
	sortBy       string
	direction    string
	page         int
	pageSize     int
	from         string
	to           string
	platforms    []string
	types        []string
	affiliate    string
	product      string
}

func newReportCmd() *cobra.Command {
	var f reportFlags
	cmd := &cobra.Command{
		Use:       "report [affiliate|product|offer|item]",
		Short:     "Aggregate a transaction export into one report page",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"affiliate", "product", "offer", "item"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dim := domain.DimensionAffiliate
			if len(args) == 1 {
				dim = domain.Dimension(strings.ToLower(args[0]))
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			log := logger.NewWithOutput(logLevel, cmd.ErrOrStderr())
			return runReport(cmd.Context(), newEngine(cfg, log), cmd.OutOrStdout(), globals(), dim, f)
		},
	}

	cmd.Flags().StringVarP(&f.transactions, "transactions", "t", "-", "JSON transaction file, - for stdin")
	cmd.Flags().StringVarP(&f.sortBy, "sort", "s", "total_revenue", "sort column")
	cmd.Flags().StringVarP(&f.direction, "direction", "d", string(domain.SortDesc), "asc or desc")
	cmd.Flags().IntVarP(&f.page, "page", "p", 1, "page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "rows per page (default from config)")
	cmd.Flags().StringVar(&f.from, "from", "", "start date, YYYY-MM-DD or RFC3339")
	cmd.Flags().StringVar(&f.to, "to", "", "end date, YYYY-MM-DD or RFC3339")
	cmd.Flags().StringSliceVar(&f.platforms, "platform", nil, "platforms to include")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "transaction types to include")
	cmd.Flags().StringVar(&f.affiliate, "affiliate", "", "affiliate id")
	cmd.Flags().StringVar(&f.product, "product", "", "product name substring")
	return cmd
}

func (f reportFlags) filter() (domain.TransactionFilter, error) {
	var filter domain.TransactionFilter
	if f.from != "" {
		t, err := domain.ParseTimeBound(f.from, false)
		if err != nil {
			return filter, err
		}
		filter.From = &t
	}
	if f.to != "" {
		t, err := domain.ParseTimeBound(f.to, true)
		if err != nil {
			return filter, err
		}
		filter.To = &t
	}
	for _, p := range f.platforms {
		filter.Platforms = append(filter.Platforms, domain.ParsePlatform(p))
	}
	for _, s := range f.types {
		typ := domain.TransactionType(strings.ToUpper(strings.TrimSpace(s)))
		if !typ.IsValid() {
			return filter, fmt.Errorf("unknown transaction type %q", s)
		}
		filter.Types = append(filter.Types, typ)
	}
	filter.AffiliateID = f.affiliate
	filter.ProductName = f.product
	return filter, nil
}

func runReport(ctx context.Context, e *engine, out io.Writer, g globalFlags, dim domain.Dimension, f reportFlags) error {
	filter, err := f.filter()
	if err != nil {
		return err
	}
	if err := e.loadArsenals(ctx, g.arsenal); err != nil {
		return err
	}
	if _, err := e.loadTransactions(ctx, f.transactions); err != nil {
		return err
	}

	resp, err := e.reports.BuildReport(ctx, usecase.ReportQuery{
		UserID:    cliUserID,
		Dimension: dim,
		Filter:    filter,
		SortBy:    f.sortBy,
		Direction: f.direction,
		Page:      f.page,
		PageSize:  f.pageSize,
	})
	if err != nil {
		return err
	}

	if g.output == outputJSON {
		return writeJSON(out, resp)
	}
	return writeReportTable(out, resp)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReportTable(out io.Writer, resp *domain.ReportResponse) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "KEY\tLABEL\tSALES\tREFUNDS\tREVENUE\tGROSS SALES\tNET\tPROFIT\tCASH FLOW\tAOV\tREFUND %\tSEVERITY\t")
	for _, r := range resp.Rows {
		writeRow(tw, r)
	}
	fmt.Fprintln(tw, "\t\t\t\t\t\t\t\t\t\t\t\t")
	writeRow(tw, resp.PageTotal)
	grand := resp.GrandTotal
	grand.Key, grand.Label = "grand", "Grand total"
	writeRow(tw, grand)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "page %d/%d, %d rows, sorted by %s %s\n",
		resp.Page, max(resp.TotalPages, 1), resp.TotalRows, resp.SortBy, resp.Direction)
	return err
}

func writeRow(w io.Writer, r domain.ReportRow) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
		r.Key, r.Label, r.SalesCount, r.RefundCount,
		r.TotalRevenue.StringFixed(2), r.GrossSales.StringFixed(2), r.Net.StringFixed(2),
		r.Profit.StringFixed(2), r.CashFlow.StringFixed(2), r.AOV.StringFixed(2),
		r.RefundRate.StringFixed(2), r.RefundSeverity)
}
