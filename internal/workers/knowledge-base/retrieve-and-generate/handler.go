// internal/workers/knowledge-base/retrieve-and-generate/handler.go
package retrieveandgenerate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"kb-retrieval/internal/common/config"
	"kb-retrieval/internal/common/errors"
	"kb-retrieval/internal/common/logger"
	"kb-retrieval/internal/common/metrics"
)

const TaskType = "kb-retrieve-and-generate"

type Handler struct {
	config       *Config
	logger       logger.Logger
	service      *Service
	recorder     Recorder
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	API          RetrieveAndGenerateAPI
	Logger       logger.Logger
	Tracer       trace.Tracer
	Recorder     Recorder
}

// NewHandler builds the handler once per process. The API client and the
// resolved identifiers are reused by every invocation.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	handlerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := handlerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.API == nil {
		return nil, fmt.Errorf("invalid configuration for %s: retrieve-and-generate client is required", TaskType)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}

	handler := &Handler{
		config:       handlerConfig,
		logger:       loggerInstance,
		recorder:     opts.Recorder,
		errorHandler: errors.NewErrorHandler(loggerInstance),
	}

	handler.service = NewService(ServiceDependencies{
		API:    opts.API,
		Logger: loggerInstance,
	}, handler.config).WithTracer(opts.Tracer)

	return handler, nil
}

// Config returns the resolved configuration.
func (h *Handler) Config() *Config {
	return h.config
}

// Handle is the Lambda entrypoint. Failures are returned to the host
// unchanged; no error envelope is produced.
func (h *Handler) Handle(ctx context.Context, event Event) (*Response, error) {
	resp, _, err := h.process(ctx, metrics.SourceLambda, event)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// process runs parse, call and serialize for one event and records metrics
// under source.
func (h *Handler) process(ctx context.Context, source string, event Event) (*Response, *Result, error) {
	startTime := time.Now()
	metrics.InvocationsActive.WithLabelValues(source).Inc()
	defer metrics.InvocationsActive.WithLabelValues(source).Dec()

	log := h.logger.With(map[string]interface{}{
		"requestId": requestID(ctx),
		"source":    source,
	})

	resp, result, err := h.execute(ctx, log, event)

	duration := time.Since(startTime)
	metrics.InvocationDuration.WithLabelValues(source).Observe(duration.Seconds())
	status := "success"
	if err != nil {
		status = "failure"
		code := string(errors.CodeOf(err))
		metrics.InvocationsFailed.WithLabelValues(source, code).Inc()
		log.Error("Retrieve-and-generate invocation failed", map[string]interface{}{
			"errorCode":  code,
			"error":      err,
			"durationMs": duration.Milliseconds(),
		})
	} else {
		metrics.InvocationsCompleted.WithLabelValues(source).Inc()
		log.Info("Retrieve-and-generate invocation completed", map[string]interface{}{
			"sessionId":  result.SessionID,
			"durationMs": duration.Milliseconds(),
		})
	}
	if h.recorder != nil {
		h.recorder.RecordInvocation(ctx, source, status, duration)
	}

	return resp, result, err
}

func (h *Handler) execute(ctx context.Context, log logger.Logger, event Event) (*Response, *Result, error) {
	req, err := ParseEvent(event)
	if err != nil {
		return nil, nil, err
	}

	log.Info("Prompt received", map[string]interface{}{
		"prompt": req.Prompt,
	})

	result, err := h.service.Execute(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	resp, err := BuildResponse(result)
	if err != nil {
		return nil, nil, err
	}
	return resp, result, nil
}

// BuildResponse wraps the extracted fields in a 200 envelope whose body is
// the JSON text of {"text", "citations"}.
func BuildResponse(result *Result) (*Response, error) {
	body, err := marshalPayload(Payload{
		Text:      result.Text,
		Citations: result.Citation,
	})
	if err != nil {
		return nil, errors.NewSerializationFailedError(err)
	}
	return &Response{
		StatusCode: http.StatusOK,
		Body:       body,
	}, nil
}

func marshalPayload(p Payload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// requestID prefers the Lambda request id and falls back to a fresh UUID.
func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.New().String()
}
