package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/canonical/store-api-go/storeapi"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var recommendationsCmd = &cobra.Command{
	Use:   "recommendations [categories|category ID|popular|recent|trending|top-rated|recently-updated]",
	Short: "Query the snap recommendations service through the cache",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		retry, err := a.cfg.Retry.Options()
		if err != nil {
			return err
		}
		client, err := storeapi.NewRecommendationsClient(a.cfg.Recommendations.URL,
			storeapi.WithLogger(a.log),
			storeapi.WithRequester(&http.Client{Timeout: a.cfg.Recommendations.Timeout.Std()}),
			storeapi.WithRetryOptions(retry...),
			storeapi.WithTracerProvider(a.tracer),
		)
		if err != nil {
			return err
		}
		r := storeapi.NewRecommendations(client, storeapi.WithCache(a.cache, a.cfg.Recommendations.CacheTTL.Std()))

		ctx := cmd.Context()
		var result any
		switch args[0] {
		case "categories":
			result, err = r.Categories(ctx)
		case "category":
			if len(args) != 2 {
				return errors.New("category needs an id")
			}
			result, err = r.Category(ctx, args[1])
		case "popular":
			result, err = r.Popular(ctx)
		case "recent":
			result, err = r.Recent(ctx)
		case "trending":
			result, err = r.Trending(ctx)
		case "top-rated":
			result, err = r.TopRated(ctx)
		case "recently-updated":
			page, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("size")
			result, err = r.RecentlyUpdated(ctx, page, size)
		default:
			return errors.Newf("unknown listing %q", args[0])
		}
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	recommendationsCmd.Flags().Int("page", 1, "page for recently-updated")
	recommendationsCmd.Flags().Int("size", 10, "page size for recently-updated")
}
