package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoatlas/poimap/pkg/taginfo"
)

var tagsCmd = &cobra.Command{
	Use:   "tags [key]",
	Short: "Explore the OSM tag vocabulary",
	Long: "Without arguments, lists the most-used OSM tag keys from taginfo. " +
		"With a key argument, lists that key's most common values.",
	Args: cobra.MaximumNArgs(1),
	RunE: runTags,
}

func init() {
	tagsCmd.Flags().Int("limit", 25, "maximum entries to list")
	tagsCmd.Flags().Bool("builtin", false, "list the built-in vocabulary instead of querying taginfo")
	rootCmd.AddCommand(tagsCmd)
}

func runTags(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	builtin, _ := cmd.Flags().GetBool("builtin")

	if builtin {
		for _, k := range taginfo.NewStatic().Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	}

	client := taginfo.NewClient(taginfo.WithEndpoint(cfg.Taginfo.Endpoint))

	if len(args) == 1 {
		values, err := client.KeyValues(ctx, args[0], limit)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", v.Value, v.Count)
		}
		return nil
	}

	keys, err := client.Keys(ctx, limit)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	return nil
}
