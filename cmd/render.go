package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geoatlas/poimap/internal/render"
	"github.com/geoatlas/poimap/pkg/overpass"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render queried features on a basemap",
	Long: "Runs a tag-filtered query over a region and draws the matching features on OSM basemap tiles, " +
		"writing the composed map as a PNG file.",
	RunE: runRender,
}

func init() {
	renderCmd.Flags().String("place", "", "region as a place name, resolved via Nominatim")
	renderCmd.Flags().String("bbox", "", "region as south,west,north,east in decimal degrees")
	renderCmd.Flags().StringArrayP("tag", "t", nil, "tag filter as key=value or bare key (repeatable)")
	renderCmd.Flags().String("classes", "", "element classes to query: comma list of node,way,relation (default all)")
	renderCmd.Flags().StringP("out", "o", "map.png", "output PNG path")
	renderCmd.Flags().String("style", "", "YAML style file overriding the default marker style")
	renderCmd.Flags().Bool("basemap-only", false, "skip the feature query and render just the basemap")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	place, _ := cmd.Flags().GetString("place")
	bbox, _ := cmd.Flags().GetString("bbox")
	tags, _ := cmd.Flags().GetStringArray("tag")
	classesFlag, _ := cmd.Flags().GetString("classes")
	out, _ := cmd.Flags().GetString("out")
	stylePath, _ := cmd.Flags().GetString("style")
	basemapOnly, _ := cmd.Flags().GetBool("basemap-only")

	style := render.DefaultStyle()
	if stylePath != "" {
		s, err := render.LoadStyle(stylePath)
		if err != nil {
			return err
		}
		style = s
	}

	resolver, cache := newResolver()
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	bounds, err := resolveBounds(ctx, resolver, place, bbox)
	if err != nil {
		return err
	}

	var coll *overpass.Collection
	if !basemapOnly {
		q, err := buildQuery(ctx, bounds, tags, classesFlag, 0)
		if err != nil {
			return err
		}
		c, err := executeQuery(ctx, newOverpassClient(), q, overpass.FormatSimple)
		if err != nil {
			return err
		}
		coll = c
	}

	img, err := newRenderer(newBasemapFetcher()).Render(ctx, bounds, coll, style)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return eris.Wrapf(err, "create %s", out)
	}
	defer func() { _ = f.Close() }()

	if err := render.EncodePNG(f, img); err != nil {
		return err
	}
	zap.L().Info("map written", zap.String("path", out),
		zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()))
	return nil
}
