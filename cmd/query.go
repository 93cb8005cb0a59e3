package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geoatlas/poimap/internal/export"
	"github.com/geoatlas/poimap/pkg/geo"
	"github.com/geoatlas/poimap/pkg/overpass"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query OSM features inside a region",
	Long: "Runs a tag-filtered Overpass query over a region given as a place name or an explicit bounding box, " +
		"and writes the result as GeoJSON (default) or shapefiles.",
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("place", "", "region as a place name, resolved via Nominatim")
	queryCmd.Flags().String("bbox", "", "region as south,west,north,east in decimal degrees")
	queryCmd.Flags().StringArrayP("tag", "t", nil, "tag filter as key=value or bare key (repeatable, filters AND together)")
	queryCmd.Flags().String("classes", "", "element classes to query: comma list of node,way,relation (default all)")
	queryCmd.Flags().String("format", "simple", "result format: simple or topology")
	queryCmd.Flags().Duration("timeout", 0, "server-side query timeout (default from config)")
	queryCmd.Flags().StringP("out", "o", "", "output file or directory (default stdout GeoJSON)")
	queryCmd.Flags().String("export", "geojson", "export format: geojson or shp")
	queryCmd.Flags().String("within", "", "narrow results to a sub-box south,west,north,east without re-querying")
	queryCmd.Flags().String("near", "", "keep only the features nearest to lat,lon[,count] (count defaults to 10)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	place, _ := cmd.Flags().GetString("place")
	bbox, _ := cmd.Flags().GetString("bbox")
	tags, _ := cmd.Flags().GetStringArray("tag")
	classesFlag, _ := cmd.Flags().GetString("classes")
	formatFlag, _ := cmd.Flags().GetString("format")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out, _ := cmd.Flags().GetString("out")
	exportFormat, _ := cmd.Flags().GetString("export")

	resolver, cache := newResolver()
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	bounds, err := resolveBounds(ctx, resolver, place, bbox)
	if err != nil {
		return err
	}

	q, err := buildQuery(ctx, bounds, tags, classesFlag, timeout)
	if err != nil {
		return err
	}

	format, err := parseFormat(formatFlag)
	if err != nil {
		return err
	}

	coll, err := executeQuery(ctx, newOverpassClient(), q, format)
	if err != nil {
		return err
	}

	within, _ := cmd.Flags().GetString("within")
	near, _ := cmd.Flags().GetString("near")
	coll, err = narrowCollection(coll, within, near)
	if err != nil {
		return err
	}

	zap.L().Info("query complete",
		zap.String("bbox", bounds.String()),
		zap.Int("features", coll.Count()),
	)

	switch exportFormat {
	case "geojson":
		return writeGeoJSONOut(cmd.OutOrStdout(), out, coll)
	case "shp":
		if out == "" {
			out = "poimap"
		}
		base := strings.TrimSuffix(filepath.Base(out), ".shp")
		_, err := export.WriteShapefiles(filepath.Dir(out), base, coll)
		return err
	default:
		return eris.Errorf("unknown export format %q", exportFormat)
	}
}

// buildQuery assembles the query descriptor shared by query and render.
func buildQuery(ctx context.Context, bounds geo.BoundingBox, tags []string, classesFlag string, timeout time.Duration) (overpass.Query, error) {
	filters, err := parseFilters(tags)
	if err != nil {
		return overpass.Query{}, err
	}
	classes, err := parseClasses(classesFlag)
	if err != nil {
		return overpass.Query{}, err
	}

	if timeout <= 0 {
		timeout = time.Duration(cfg.Overpass.TimeoutSecs) * time.Second
	}

	return overpass.NewQuery(bounds, filters,
		overpass.WithClasses(classes),
		overpass.WithTimeout(timeout),
		overpass.WithVocabulary(newVocabulary(ctx)),
	)
}

func parseFormat(s string) (overpass.Format, error) {
	switch s {
	case "simple", "":
		return overpass.FormatSimple, nil
	case "topology":
		return overpass.FormatTopology, nil
	default:
		return 0, eris.Errorf("unknown result format %q", s)
	}
}

// writeGeoJSONOut writes to the named file, or w when name is empty.
func writeGeoJSONOut(w io.Writer, name string, coll *overpass.Collection) error {
	if name == "" || name == "-" {
		return export.WriteGeoJSON(w, coll)
	}
	f, err := os.Create(name)
	if err != nil {
		return eris.Wrapf(err, "create %s", name)
	}
	defer func() { _ = f.Close() }()
	if err := export.WriteGeoJSON(f, coll); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "wrote", name)
	return nil
}
