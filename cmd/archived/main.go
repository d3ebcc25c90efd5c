// File: cmd/archived/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// archived runs a standalone archive over an in-process stream driver
// and exposes an operational HTTP surface: health, Prometheus metrics
// and read-only catalog inspection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/archive"
	"github.com/momentics/hioload-archive/catalog"
	"github.com/momentics/hioload-archive/driver"
	"github.com/momentics/hioload-archive/internal/config"
	"github.com/momentics/hioload-archive/internal/logger"
	"github.com/momentics/hioload-archive/internal/metrics"
)

type options struct {
	dir               string
	listen            string
	segmentFileLength int
	fileSyncLevel     int
	threading         string
	agentCPUs         []int
	logLevel          string
	logFormat         string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config.Load()
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "archived",
		Short:         "Message stream recording and replay archive",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dir, "dir",
		config.GetEnv("ARCHIVE_DIR", "data/archive"), "archive directory for catalog and segment files")
	flags.StringVar(&opts.listen, "listen",
		config.GetEnv("ARCHIVE_LISTEN", ":8090"), "listen address of the operational HTTP endpoint")
	flags.IntVar(&opts.segmentFileLength, "segment-file-length",
		config.GetEnvInt("ARCHIVE_SEGMENT_FILE_LENGTH", archive.DefaultSegmentFileLength), "target segment file length in bytes")
	flags.IntVar(&opts.fileSyncLevel, "file-sync-level",
		config.GetEnvInt("ARCHIVE_FILE_SYNC_LEVEL", 0), "0 none, 1 data, 2 data and metadata")
	flags.StringVar(&opts.threading, "threading",
		config.GetEnv("ARCHIVE_THREADING", "shared"), "agent threading mode: shared or dedicated")
	flags.IntSliceVar(&opts.agentCPUs, "agent-cpus",
		nil, "logical CPUs to pin agents to, in conductor,recorder,replayer order")
	flags.StringVar(&opts.logLevel, "log-level",
		config.GetEnv("ARCHIVE_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format",
		config.GetEnv("ARCHIVE_LOG_FORMAT", "json"), "log format: json or text")
	return cmd
}

func run(opts *options) error {
	log := logger.New(opts.logLevel, opts.logFormat)
	mets := metrics.New()

	mode := archive.ThreadingModeShared
	switch opts.threading {
	case "shared":
	case "dedicated":
		mode = archive.ThreadingModeDedicated
	default:
		return fmt.Errorf("unknown threading mode %q", opts.threading)
	}

	drv := driver.New()
	defer drv.Close()

	arch, err := archive.Launch(&archive.Context{
		ArchiveDir:        opts.dir,
		Driver:            drv,
		SegmentFileLength: int32(opts.segmentFileLength),
		FileSyncLevel:     opts.fileSyncLevel,
		ThreadingMode:     mode,
		AgentCPUs:         opts.agentCPUs,
		Logger:            log,
		Metrics:           mets,
	})
	if err != nil {
		return err
	}
	defer arch.Close()

	srv := &http.Server{
		Addr:              opts.listen,
		Handler:           newRouter(arch, mets),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.Info("http endpoint listening", "addr", opts.listen)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	return arch.Close()
}

func newRouter(arch *archive.Archive, mets *metrics.Collectors) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", mets.Handler())

	r.Get("/v1/recordings", func(w http.ResponseWriter, req *http.Request) {
		fromID := queryInt64(req, "from", 0)
		count := int(queryInt64(req, "count", 100))
		descs, err := arch.DescribeRecordings(fromID, count)
		if err != nil && !errors.Is(err, catalog.ErrUnknownRecording) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if descs == nil {
			descs = []api.RecordingDescriptor{}
		}
		writeJSON(w, http.StatusOK, descs)
	})

	r.Get("/v1/recordings/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid recording id"})
			return
		}
		descs, err := arch.DescribeRecordings(id, 1)
		if err != nil || len(descs) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown recording"})
			return
		}
		writeJSON(w, http.StatusOK, descs[0])
	})

	r.Get("/v1/recordings/{id}/position", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid recording id"})
			return
		}
		position, stopped, err := arch.RecordingExtent(id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown recording"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"recordingId": id,
			"position":    position,
			"stopped":     stopped,
		})
	})
	return r
}

func queryInt64(req *http.Request, key string, def int64) int64 {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
