// cmd/tools/kb-invoke/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"go.uber.org/zap"

	awsclients "kb-retrieval/internal/common/aws"
	"kb-retrieval/internal/common/logger"
	rag "kb-retrieval/internal/workers/knowledge-base/retrieve-and-generate"
)

// cmdInvoke corresponds to the `kb-invoke` command.
type cmdInvoke struct {
	Prompt   string        `help:"Prompt to send to the function." required:""`
	Function string        `help:"Lambda function name or ARN." default:"kb-retrieve-and-generate"`
	Region   string        `help:"AWS region. Defaults to the SDK chain."`
	Raw      bool          `help:"Print the raw response envelope."`
	Timeout  time.Duration `help:"Invocation timeout." default:"60s"`
}

// Validate is called by Kong after parsing.
func (c *cmdInvoke) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

type invoker interface {
	Invoke(ctx context.Context, input *lambda.InvokeInput) (*lambda.InvokeOutput, error)
}

type newInvokerFn func(ctx context.Context, region string) (invoker, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.New("warn", "console", "stderr")
	defer log.Sync()

	newInvoker := func(ctx context.Context, region string) (invoker, error) {
		return awsclients.NewLambdaClient(ctx, region)
	}
	if err := doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, newInvoker); err != nil {
		log.Fatal("invoke failed", zap.Error(err))
	}
}

// doMain parses args and runs one invocation. stdout, stderr and exitFn are
// swapped out by tests.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int), newInvoker newInvokerFn) error {
	var c cmdInvoke
	parser, err := kong.New(&c,
		kong.Name("kb-invoke"),
		kong.Description("Invoke the knowledge-base retrieve-and-generate function"),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
	)
	if err != nil {
		return fmt.Errorf("creating parser: %w", err)
	}
	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	client, err := newInvoker(ctx, c.Region)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}
	return invoke(ctx, client, c, stdout)
}

func invoke(ctx context.Context, client invoker, c cmdInvoke, stdout io.Writer) error {
	payload, err := buildPayload(c.Prompt)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(c.Function),
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke lambda function %s: %w", c.Function, err)
	}
	if result.FunctionError != nil {
		return fmt.Errorf("lambda function returned an error (%s): %s",
			aws.ToString(result.FunctionError), string(result.Payload))
	}

	if c.Raw {
		_, err = fmt.Fprintln(stdout, string(result.Payload))
		return err
	}

	resp, body, err := decodeResponse(result.Payload)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	_, err = fmt.Fprintf(stdout, "Status: %d\nAnswer: %s\nCitation: %s\n", resp.StatusCode, body.Text, body.Citations)
	return err
}

func buildPayload(prompt string) ([]byte, error) {
	return json.Marshal(rag.Event{"prompt": prompt})
}

// decodeResponse unpacks the envelope and then the JSON text in its body.
func decodeResponse(payload []byte) (*rag.Response, *rag.Payload, error) {
	var resp rag.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	var body rag.Payload
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		return nil, nil, fmt.Errorf("decode body: %w", err)
	}
	return &resp, &body, nil
}
