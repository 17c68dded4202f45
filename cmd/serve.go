package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/student-map/internal/api"
	"github.com/sells-group/student-map/internal/session"
)

var (
	servePort         int
	serveFromSnapshot bool
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the map API server",
	Long:  "Loads every source in the background and serves layers, heat data, the buffer filter and CSV export over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		if serveFromSnapshot && st == nil {
			return eris.New("--from-snapshot needs a store (set store.driver to sqlite or postgres)")
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		ms := newMarkerStore()
		sessions := session.NewRegistry(ms, cfg.Buffer.DefaultRadiusMiles)

		opts := api.Options{
			Markers:        ms,
			Sessions:       sessions,
			ExportFilename: cfg.Export.Filename,
			CORSOrigins:    cfg.Server.CORSOrigins,
		}
		if st != nil {
			opts.Exports = st
		}

		// Sources fill in as they finish; the map is usable before then.
		go fillMarkers(ctx, ms, st, serveFromSnapshot)
		go pruneSessions(ctx, sessions, time.Duration(cfg.Server.SessionIdleMins)*time.Minute)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewRouter(opts),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Int("sources", len(cfg.Sources)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// pruneSessions drops idle sessions until ctx is done.
func pruneSessions(ctx context.Context, r *session.Registry, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(maxIdle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(maxIdle); n > 0 {
				zap.L().Debug("pruned idle sessions", zap.Int("removed", n), zap.Int("live", r.Len()))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveFromSnapshot, "from-snapshot", false, "serve the last saved snapshot instead of fetching sources")
	rootCmd.AddCommand(serveCmd)
}
