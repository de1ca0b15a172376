package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/jobpilot/internal/api"
	"github.com/kalambet/jobpilot/internal/config"
	"github.com/kalambet/jobpilot/internal/engine"
	"github.com/kalambet/jobpilot/internal/ingest"
)

const (
	workerPollInterval = 500 * time.Millisecond
	shutdownTimeout    = 5 * time.Second
	healthTimeout      = 2 * time.Second
	engineProbeTimeout = 3 * time.Second
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the jobpilot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running jobpilot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show jobpilot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// pidFile records the PID of a foreground server so `stop` can signal it.
type pidFile string

func pidFileIn(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "jobpilot.pid"))
}

func (p pidFile) write() error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (p pidFile) read() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (p pidFile) remove() { os.Remove(string(p)) }

func localURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// probeHealth returns the status code of GET /health on a local server.
func probeHealth(baseURL string) (int, error) {
	resp, err := (&http.Client{Timeout: healthTimeout}).Get(baseURL + "/health")
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "jobpilot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	pid := pidFileIn(cfg.Storage.DataDir)
	if _, err := probeHealth(localURL(cfg.Server.Port)); err == nil {
		if n, err := pid.read(); err == nil {
			return fmt.Errorf("server already running (PID %d)", n)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := pid.write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pid.remove()

	svc, err := newServices(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("closing services", "error", err)
		}
	}()

	if cfg.Server.APIToken == "" {
		slog.Warn("JOBPILOT_API_TOKEN is not set; API requests are not authenticated")
	}
	if cfg.Server.MCPEnabled {
		serveMCP(ctx, svc)
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr: fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: api.NewAppHandler(api.AppDeps{
			Store:    svc.store,
			Analyzer: svc.pipeline,
			Ingester: svc.ingester,
			Recaller: svc.retriever,
			Token:    cfg.Server.APIToken,
		}),
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		ingest.NewWorker(svc.store, svc.pipeline, svc.ingester, workerPollInterval).Run(gctx)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "jobpilot listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// serveMCP exposes the same operations over MCP on stdin/stdout until ctx ends.
func serveMCP(ctx context.Context, svc *services) {
	stdio := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{
		Store:    svc.store,
		Analyzer: svc.pipeline,
		Ingester: svc.ingester,
		Recaller: svc.retriever,
	}))
	go func() {
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pf := pidFileIn(cfg.Storage.DataDir)
	pid, err := pf.read()
	if err != nil {
		printError("jobpilot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop jobpilot (PID %d): %v", pid, err)
		pf.remove()
		return err
	}

	printSuccess("Sent stop signal to jobpilot (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := localURL(cfg.Server.Port)
	code, err := probeHealth(serverURL)
	running := err == nil && code == http.StatusOK
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case running:
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		printStatus("Server", "error (HTTP %d)", code)
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	probeCtx, cancel := context.WithTimeout(ctx, engineProbeTimeout)
	defer cancel()
	if eng, err := engine.Detect(probeCtx, detectConfig(cfg)); err != nil {
		printStatus("Engine", "unavailable (%v)", err)
	} else {
		if eng.IsRunning(probeCtx) {
			printStatus("Engine", "reachable")
		} else {
			printStatus("Engine", "not reachable")
		}
		closeEngine(eng)
	}
	printStatus("Chat model", "%s", cfg.LLM.ChatModel())
	printStatus("Embed model", "%s", cfg.LLM.EmbeddingModel())

	if running {
		ac := &apiClient{baseURL: serverURL, token: cfg.Server.APIToken, httpClient: &http.Client{Timeout: healthTimeout}}
		if resp, err := ac.get(ctx, "/analyses?limit=100"); err == nil {
			var analyses []json.RawMessage
			if decodeJSON(resp, &analyses) == nil {
				printStatus("Analyses", "%s", countLabel(len(analyses), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
