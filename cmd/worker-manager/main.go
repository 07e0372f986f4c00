// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	awsclients "kb-retrieval/internal/common/aws"
	"kb-retrieval/internal/common/camunda"
	"kb-retrieval/internal/common/config"
	"kb-retrieval/internal/common/logger"
	"kb-retrieval/internal/common/observability"
	rag "kb-retrieval/internal/workers/knowledge-base/retrieve-and-generate"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...", zap.String("environment", cfg.App.Environment))

	if err := config.ValidateWorker(cfg); err != nil {
		zapLog.Fatal("invalid worker configuration", zap.Error(err))
	}

	obs, err := observability.New(cfg.App.Name, observability.Options{EnableTracing: cfg.Tracing.Enabled})
	if err != nil {
		zapLog.Warn("observability setup incomplete", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bedrock, err := awsclients.NewBedrockAgentRuntimeClient(ctx, cfg.Bedrock.Region)
	if err != nil {
		zapLog.Fatal("bedrock client init failed", zap.Error(err))
	}

	zeebe, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully", zap.String("gateway", cfg.Camunda.BrokerAddress))

	handler, err := rag.NewHandler(rag.HandlerOptions{
		AppConfig: cfg,
		API:       bedrock,
		Logger:    log,
		Tracer:    obs.Tracer(),
		Recorder:  obs,
	})
	if err != nil {
		zapLog.Fatal("failed to create "+rag.TaskType+" handler", zap.Error(err))
	}

	var jobWorker *camunda.JobWorker
	if config.IsWorkerEnabled(cfg, rag.TaskType) {
		jobWorker = camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      rag.TaskType,
			MaxJobsActive: handler.Config().MaxJobsActive,
			Timeout:       handler.Config().JobTimeout,
		}, handler, log)
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", rag.TaskType))
	}

	var server *http.Server
	if cfg.Metrics.Enabled {
		server = newHealthServer(cfg.Metrics.Address, zeebe)
		go func() {
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if jobWorker != nil {
		jobWorker.Stop()
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
		}
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func newHealthServer(addr string, zeebe *camunda.Client) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := zeebe.HealthCheck(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// loadConfig reads CONFIG_FILE when set, otherwise the default search paths.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
