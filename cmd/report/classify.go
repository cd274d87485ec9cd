package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"affrollup/internal/domain"
	"affrollup/pkg/config"
	"affrollup/pkg/logger"
)

type classifyResult struct {
	ProductName string `json:"product_name"`
	domain.Classification
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify PRODUCT_NAME...",
		Short: "Show how product names resolve under the arsenal file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			log := logger.NewWithOutput(logLevel, cmd.ErrOrStderr())
			return runClassify(cmd.Context(), newEngine(cfg, log), cmd.OutOrStdout(), globals(), args)
		},
	}
}

func runClassify(ctx context.Context, e *engine, out io.Writer, g globalFlags, names []string) error {
	if g.arsenal == "" {
		return errors.New("--arsenal is required")
	}
	if err := e.loadArsenals(ctx, g.arsenal); err != nil {
		return err
	}

	results := make([]classifyResult, 0, len(names))
	for _, name := range names {
		c, err := e.arsenals.Classify(ctx, cliUserID, name)
		if err != nil {
			return err
		}
		results = append(results, classifyResult{ProductName: name, Classification: *c})
	}

	if g.output == outputJSON {
		return writeJSON(out, results)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tGROUP\tOFFER\tTYPE\tGROUPED")
	for _, r := range results {
		offer := "-"
		if r.OfferKey != nil {
			offer = r.OfferName
		}
		typ := string(r.OfferType)
		if typ == "" {
			typ = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.ProductName, r.GroupName, offer, typ, r.IsGrouped)
	}
	return tw.Flush()
}
