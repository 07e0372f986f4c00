package retrieveandgenerate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kb-retrieval/internal/common/errors"
	"kb-retrieval/internal/common/logger"
)

type Service struct {
	config *Config
	api    RetrieveAndGenerateAPI
	logger logger.Logger
	tracer trace.Tracer
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config: config,
		api:    deps.API,
		logger: log,
		tracer: otel.Tracer(TaskType),
	}
}

// WithTracer replaces the tracer used for the outbound call span.
func (s *Service) WithTracer(tracer trace.Tracer) *Service {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// Execute makes exactly one retrieve-and-generate call and extracts the
// answer text and the first citation.
func (s *Service) Execute(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "bedrock.RetrieveAndGenerate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("kb.knowledge_base_id", s.config.KnowledgeBaseID),
			attribute.String("kb.model_arn", s.config.ModelARN),
			attribute.Int("kb.prompt_length", len(req.Prompt)),
		),
	)
	defer span.End()

	out, err := s.api.RetrieveAndGenerate(ctx, s.buildInput(req.Prompt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve-and-generate failed")
		return nil, errors.NewRetrieveAndGenerateFailedError(err)
	}

	result, err := extractResult(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("kb.citation_count", len(out.Citations)),
		attribute.String("kb.session_id", result.SessionID),
	)
	s.logger.Debug("Retrieve-and-generate returned", map[string]interface{}{
		"sessionId":     result.SessionID,
		"citationCount": len(out.Citations),
		"textLength":    len(result.Text),
	})
	return result, nil
}

func (s *Service) buildInput(prompt string) *bedrockagentruntime.RetrieveAndGenerateInput {
	return &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{
			Text: aws.String(prompt),
		},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(s.config.KnowledgeBaseID),
				ModelArn:        aws.String(s.config.ModelARN),
			},
		},
	}
}

// extractResult reads output.text and the text of the first citation's
// generated response part. A response without a usable first citation is
// rejected.
func extractResult(out *bedrockagentruntime.RetrieveAndGenerateOutput) (*Result, error) {
	if out == nil || out.Output == nil || out.Output.Text == nil {
		return nil, errors.NewResponseShapeInvalidError("output.text missing")
	}
	if len(out.Citations) == 0 {
		return nil, errors.NewNoSupportingCitationError("citations list is empty")
	}

	part := out.Citations[0].GeneratedResponsePart
	if part == nil || part.TextResponsePart == nil || part.TextResponsePart.Text == nil {
		return nil, errors.NewNoSupportingCitationError(
			fmt.Sprintf("citations[0].generatedResponsePart.textResponsePart.text missing (%d citations)", len(out.Citations)),
		)
	}

	return &Result{
		Text:      aws.ToString(out.Output.Text),
		Citation:  aws.ToString(part.TextResponsePart.Text),
		SessionID: aws.ToString(out.SessionId),
	}, nil
}
