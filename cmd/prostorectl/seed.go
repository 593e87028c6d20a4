package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/service"
)

//go:embed seed.json
var defaultSeed []byte

type seedData struct {
	Users    []service.UpsertUserInput    `json:"users"`
	Products []service.UpsertProductInput `json:"products"`
	Reviews  []service.SubmitReviewInput  `json:"reviews"`
}

type catalogSeeder interface {
	UpsertUser(ctx context.Context, in service.UpsertUserInput) error
	UpsertProduct(ctx context.Context, in service.UpsertProductInput) (*domain.Product, error)
}

type reviewSeeder interface {
	SubmitReview(ctx context.Context, actor domain.Identity, in service.SubmitReviewInput) service.Result[service.ReviewSubmission]
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample users, products and reviews",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := loadSeed(file)
			if err != nil {
				return err
			}

			e, err := connect(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			return seed(cmd.Context(), data, e.productService(), e.reviewService(false), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed file (defaults to the built-in sample data)")
	return cmd
}

func loadSeed(file string) (seedData, error) {
	raw := defaultSeed
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return seedData{}, fmt.Errorf("read seed file: %w", err)
		}
		raw = b
	}
	var data seedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return seedData{}, fmt.Errorf("decode seed data: %w", err)
	}
	return data, nil
}

// seed upserts users and products, then submits reviews through the review
// service so ratings are maintained exactly as in production.
func seed(ctx context.Context, data seedData, catalog catalogSeeder, reviews reviewSeeder, out io.Writer) error {
	for _, u := range data.Users {
		if err := catalog.UpsertUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, p := range data.Products {
		if _, err := catalog.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	for _, r := range data.Reviews {
		res := reviews.SubmitReview(ctx, domain.Identity{UserID: r.UserID}, r)
		if !res.Success {
			return fmt.Errorf("seed review of %s by %s: %w", r.ProductID, r.UserID, res.Err())
		}
	}
	fmt.Fprintf(out, "seeded %d users, %d products, %d reviews\n", len(data.Users), len(data.Products), len(data.Reviews))
	return nil
}
