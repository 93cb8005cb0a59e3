package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geoatlas/poimap/internal/export"
	"github.com/geoatlas/poimap/internal/render"
	"github.com/geoatlas/poimap/pkg/nominatim"
	"github.com/geoatlas/poimap/pkg/overpass"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query API",
	Long:  "Serves place resolution, feature queries and map rendering over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		resolver, cache := newResolver()
		if cache != nil {
			defer func() { _ = cache.Close() }()
		}

		fetcher := newBasemapFetcher()
		deps := &serverDeps{
			resolver: resolver,
			client:   newOverpassClient(),
			fetcher:  fetcher,
			renderer: newRenderer(fetcher),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(deps, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type serverDeps struct {
	resolver nominatim.Resolver
	client   overpass.Client
	fetcher  *render.BasemapFetcher
	renderer *render.Renderer
}

// buildRouter assembles the HTTP API. Split from serveCmd so handlers are
// testable without binding a port.
func buildRouter(deps *serverDeps, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/resolve", deps.handleResolve)
	r.Get("/query", deps.handleQuery)
	r.Post("/query", deps.handleQueryPost)
	r.Get("/map.png", deps.handleMap)
	r.Get("/tiles/{z}/{x}/{y}.png", deps.handleTile)

	return r
}

func (d *serverDeps) handleResolve(w http.ResponseWriter, r *http.Request) {
	place := r.URL.Query().Get("place")
	if place == "" {
		writeError(w, http.StatusBadRequest, "place parameter is required")
		return
	}

	bounds, err := d.resolver.Resolve(r.Context(), place)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"place": place,
		"bbox": map[string]float64{
			"south": bounds.South, "west": bounds.West,
			"north": bounds.North, "east": bounds.East,
		},
	})
}

func (d *serverDeps) handleQuery(w http.ResponseWriter, r *http.Request) {
	coll, ok := d.runQuery(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := export.WriteGeoJSON(w, coll); err != nil {
		zap.L().Error("geojson write failed", zap.Error(err))
	}
}

// handleQueryPost accepts the query as a JSON document instead of URL
// parameters, for clients assembling requests programmatically.
func (d *serverDeps) handleQueryPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Place  string   `json:"place"`
		BBox   string   `json:"bbox"`
		Tags   []string `json:"tags"`
		Format string   `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bounds, err := resolveBounds(r.Context(), d.resolver, req.Place, req.BBox)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	q, err := buildQuery(r.Context(), bounds, req.Tags, "", 0)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	format, err := parseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	coll, err := executeQuery(r.Context(), d.client, q, format)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := export.WriteGeoJSON(w, coll); err != nil {
		zap.L().Error("geojson write failed", zap.Error(err))
	}
}

// handleTile proxies one basemap tile through the fetcher's cache.
func (d *serverDeps) handleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, "invalid tile coordinates")
		return
	}

	data, err := d.fetcher.Tile(r.Context(), z, x, y)
	if err != nil {
		zap.L().Warn("tile proxy failed",
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y), zap.Error(err))
		writeError(w, http.StatusBadGateway, "tile unavailable")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (d *serverDeps) handleMap(w http.ResponseWriter, r *http.Request) {
	coll, ok := d.runQuery(w, r)
	if !ok {
		return
	}

	img, err := d.renderer.Render(r.Context(), coll.Bounds, coll, render.DefaultStyle())
	if err != nil {
		zap.L().Error("render failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "render failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := render.EncodePNG(w, img); err != nil {
		zap.L().Error("png write failed", zap.Error(err))
	}
}

// runQuery parses region and filter parameters, executes the query and
// handles error responses. ok is false when a response was already written.
func (d *serverDeps) runQuery(w http.ResponseWriter, r *http.Request) (coll *overpass.Collection, ok bool) {
	params := r.URL.Query()
	bounds, err := resolveBounds(r.Context(), d.resolver, params.Get("place"), params.Get("bbox"))
	if err != nil {
		writeResolveError(w, err)
		return nil, false
	}

	q, err := buildQuery(r.Context(), bounds, params["tag"], params.Get("classes"), 0)
	if err != nil {
		writeQueryError(w, err)
		return nil, false
	}

	format, err := parseFormat(params.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	coll, err = executeQuery(r.Context(), d.client, q, format)
	if err != nil {
		writeQueryError(w, err)
		return nil, false
	}

	coll, err = narrowCollection(coll, params.Get("within"), params.Get("near"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return coll, true
}

func writeResolveError(w http.ResponseWriter, err error) {
	var nf *nominatim.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Error())
		return
	}
	writeQueryError(w, err)
}

func writeQueryError(w http.ResponseWriter, err error) {
	var invalid *overpass.InvalidQueryError
	var svc *overpass.ServiceError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.As(err, &svc):
		writeError(w, http.StatusBadGateway, svc.Error())
	case overpass.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "upstream unavailable")
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
