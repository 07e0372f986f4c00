// internal/common/aws/bedrock.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
)

// BedrockAgentRuntimeClient is built once per process and shared by every
// invocation; the underlying SDK client is safe for concurrent use.
type BedrockAgentRuntimeClient struct {
	client *bedrockagentruntime.Client
}

func NewBedrockAgentRuntimeClient(ctx context.Context, region string) (*BedrockAgentRuntimeClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &BedrockAgentRuntimeClient{client: bedrockagentruntime.NewFromConfig(cfg)}, nil
}

func (c *BedrockAgentRuntimeClient) RetrieveAndGenerate(
	ctx context.Context,
	input *bedrockagentruntime.RetrieveAndGenerateInput,
	optFns ...func(*bedrockagentruntime.Options),
) (*bedrockagentruntime.RetrieveAndGenerateOutput, error) {
	return c.client.RetrieveAndGenerate(ctx, input, optFns...)
}
