// internal/common/aws/lambda.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

type LambdaClient struct {
	client *lambda.Client
}

func NewLambdaClient(ctx context.Context, region string) (*LambdaClient, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &LambdaClient{client: lambda.NewFromConfig(cfg)}, nil
}

func (c *LambdaClient) Invoke(ctx context.Context, input *lambda.InvokeInput) (*lambda.InvokeOutput, error) {
	return c.client.Invoke(ctx, input)
}
