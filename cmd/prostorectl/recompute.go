package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
)

// recomputer rebuilds stored aggregates from the review rows.
type recomputer interface {
	RecomputeProduct(ctx context.Context, productID string) (domain.RatingAggregate, error)
	RecomputeAll(ctx context.Context) (int, error)
}

func newRecomputeCmd(opts *rootOptions) *cobra.Command {
	var (
		productID string
		publish   bool
	)
	cmd := &cobra.Command{
		Use:   "recompute-ratings",
		Short: "Rebuild product ratings and review counts from the reviews table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			return recompute(cmd.Context(), e.reviewService(publish), productID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&productID, "product", "", "recompute a single product by id")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish rating_updated events to Kafka")
	return cmd
}

func recompute(ctx context.Context, svc recomputer, productID string, out io.Writer) error {
	if productID != "" {
		agg, err := svc.RecomputeProduct(ctx, productID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "product %s: rating %s from %d reviews\n", productID, agg.Average, agg.Count)
		return nil
	}

	n, err := svc.RecomputeAll(ctx)
	fmt.Fprintf(out, "recomputed %d products\n", n)
	return err
}
