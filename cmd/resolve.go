package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoatlas/poimap/internal/resilience"
	"github.com/geoatlas/poimap/pkg/nominatim"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <place>",
	Short: "Resolve a place name to a bounding box",
	Long:  "Looks up a place name against Nominatim and prints its bounding box as south,west,north,east. Resolutions are cached locally.",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().Bool("all", false, "list every candidate region instead of the best match")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	place := args[0]
	all, _ := cmd.Flags().GetBool("all")

	resolver, cache := newResolver()
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	if all {
		candidates, err := resilience.DoVal(ctx, retryConfig(cfg, "resolve"),
			func(ctx context.Context) ([]nominatim.Place, error) {
				return resolver.Candidates(ctx, place)
			})
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return &nominatim.NotFoundError{Place: place}
		}
		for _, c := range candidates {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.DisplayName, c.Type, c.Bounds)
		}
		return nil
	}

	bounds, err := resolveBounds(ctx, resolver, place, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), bounds)
	return nil
}
