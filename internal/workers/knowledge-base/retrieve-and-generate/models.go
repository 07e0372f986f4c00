package retrieveandgenerate

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"

	"kb-retrieval/internal/common/logger"
)

// Event is the raw invocation mapping. Only "prompt" is read.
type Event map[string]interface{}

// Request is the validated form of an Event.
type Request struct {
	Prompt string `json:"prompt"`
}

// Result holds the fields extracted from a retrieve-and-generate response.
type Result struct {
	Text      string
	Citation  string
	SessionID string
}

// Payload is serialized into Response.Body.
type Payload struct {
	Text      string `json:"text"`
	Citations string `json:"citations"`
}

// Response is the HTTP-style envelope returned to the caller.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// RetrieveAndGenerateAPI is the part of the Bedrock agent runtime client the
// service calls.
type RetrieveAndGenerateAPI interface {
	RetrieveAndGenerate(
		ctx context.Context,
		params *bedrockagentruntime.RetrieveAndGenerateInput,
		optFns ...func(*bedrockagentruntime.Options),
	) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// Recorder receives one observation per invocation.
type Recorder interface {
	RecordInvocation(ctx context.Context, source, status string, d time.Duration)
}

type ServiceDependencies struct {
	API    RetrieveAndGenerateAPI
	Logger logger.Logger
}
