// cmd/kb-handler/main.go
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	awsclients "kb-retrieval/internal/common/aws"
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

	if err := config.Validate(cfg); err != nil {
		zapLog.Fatal("invalid configuration", zap.Error(err))
	}

	obs, err := observability.New(cfg.App.Name, observability.Options{EnableTracing: cfg.Tracing.Enabled})
	if err != nil {
		zapLog.Warn("observability setup incomplete", zap.Error(err))
	}

	// One client per execution environment, shared by every invocation.
	bedrock, err := awsclients.NewBedrockAgentRuntimeClient(context.Background(), cfg.Bedrock.Region)
	if err != nil {
		zapLog.Fatal("bedrock client init failed", zap.Error(err))
	}

	handler, err := rag.NewHandler(rag.HandlerOptions{
		AppConfig: cfg,
		API:       bedrock,
		Logger:    logger.NewZapAdapter(zapLog),
		Tracer:    obs.Tracer(),
		Recorder:  obs,
	})
	if err != nil {
		zapLog.Fatal("failed to create handler", zap.Error(err))
	}

	zapLog.Info("Lambda handler ready",
		zap.String("knowledgeBaseId", cfg.Bedrock.KnowledgeBaseID),
		zap.String("region", cfg.Bedrock.Region),
	)
	// lambda.Start never returns, so flushing happens on the runtime's SIGTERM.
	lambda.StartWithOptions(handler.Handle, lambda.WithEnableSIGTERM(shutdownFunc(obs, zapLog)))
}

type shutdowner interface {
	Shutdown()
}

func shutdownFunc(obs shutdowner, log *zap.Logger) func() {
	return func() {
		log.Info("SIGTERM received, flushing telemetry")
		obs.Shutdown()
		_ = log.Sync()
	}
}

// loadConfig reads CONFIG_FILE when set, otherwise the default search paths.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
