package retrieveandgenerate

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"kb-retrieval/internal/common/errors"
	"kb-retrieval/internal/common/logger"
	"kb-retrieval/internal/common/metrics"
)

// ==========================
// Gateway Fake
// ==========================

// recordingGateway captures the job commands a worker sends. Calls to any
// other gateway method panic through the nil embedded interface.
type recordingGateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	completed []*pb.CompleteJobRequest
	failed    []*pb.FailJobRequest
	thrown    []*pb.ThrowErrorRequest
}

func (g *recordingGateway) CompleteJob(_ context.Context, req *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, req)
	return &pb.CompleteJobResponse{}, nil
}

func (g *recordingGateway) FailJob(_ context.Context, req *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append(g.failed, req)
	return &pb.FailJobResponse{}, nil
}

func (g *recordingGateway) ThrowError(_ context.Context, req *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thrown = append(g.thrown, req)
	return &pb.ThrowErrorResponse{}, nil
}

func noRetry(context.Context, error) bool { return false }

// gatewayJobClient builds the real zeebe commands on top of a recordingGateway.
type gatewayJobClient struct {
	gateway *recordingGateway
}

func (c *gatewayJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c *gatewayJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c *gatewayJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

func newGatewayJobClient() (*gatewayJobClient, *recordingGateway) {
	gw := &recordingGateway{}
	return &gatewayJobClient{gateway: gw}, gw
}

func createJobHandler(t *testing.T, api RetrieveAndGenerateAPI, cfg *Config) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: cfg,
		API:          api,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

func decodeVariables(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &vars))
	return vars
}

// ==========================
// HandleJob
// ==========================

func TestHandleJob_CompletesWithResponseVariables(t *testing.T) {
	api := new(MockRetrieveAndGenerateAPI)
	api.On("RetrieveAndGenerate", mock.Anything, promptIs("What is photosynthesis?")).
		Return(createOutput("Photosynthesis converts light to energy.", "see source A"), nil).Once()

	h := createJobHandler(t, api, createValidConfig())
	client, gw := newGatewayJobClient()

	h.HandleJob(client, createMockJob(4242, map[string]interface{}{"prompt": "What is photosynthesis?"}))

	assert.Empty(t, gw.failed)
	assert.Empty(t, gw.thrown)
	require.Len(t, gw.completed, 1)
	assert.Equal(t, int64(4242), gw.completed[0].JobKey)

	vars := decodeVariables(t, gw.completed[0].Variables)
	assert.Equal(t, float64(200), vars["statusCode"])
	assert.Equal(t, "Photosynthesis converts light to energy.", vars["text"])
	assert.Equal(t, "see source A", vars["citations"])

	var body Payload
	require.NoError(t, json.Unmarshal([]byte(vars["body"].(string)), &body))
	assert.Equal(t, Payload{Text: "Photosynthesis converts light to energy.", Citations: "see source A"}, body)
	api.AssertExpectations(t)
}

func TestHandleJob_DisabledThrowsWorkerDisabled(t *testing.T) {
	api := new(MockRetrieveAndGenerateAPI)
	cfg := createValidConfig()
	cfg.Enabled = boolPtr(false)
	h := createJobHandler(t, api, cfg)
	client, gw := newGatewayJobClient()

	failedMetric := metrics.InvocationsFailed.WithLabelValues(metrics.SourceJob, string(errors.ErrCodeWorkerDisabled))
	before := testutil.ToFloat64(failedMetric)

	h.HandleJob(client, createMockJob(7, map[string]interface{}{"prompt": "ignored"}))

	assert.Empty(t, gw.completed)
	assert.Empty(t, gw.failed)
	require.Len(t, gw.thrown, 1)
	assert.Equal(t, int64(7), gw.thrown[0].JobKey)
	assert.Equal(t, string(errors.ErrCodeWorkerDisabled), gw.thrown[0].ErrorCode)
	assert.Equal(t, string(errors.ErrCodeWorkerDisabled), decodeVariables(t, gw.thrown[0].Variables)["errorCode"])

	assert.Equal(t, before+1, testutil.ToFloat64(failedMetric))
	api.AssertNotCalled(t, "RetrieveAndGenerate", mock.Anything, mock.Anything)
}

func TestHandleJob_ServiceFailureFailsWithoutRetries(t *testing.T) {
	api := new(MockRetrieveAndGenerateAPI)
	api.On("RetrieveAndGenerate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("ThrottlingException: rate exceeded")).Once()

	h := createJobHandler(t, api, createValidConfig())
	client, gw := newGatewayJobClient()

	h.HandleJob(client, createMockJob(11, map[string]interface{}{"prompt": "anything"}))

	assert.Empty(t, gw.completed)
	assert.Empty(t, gw.thrown)
	require.Len(t, gw.failed, 1)
	assert.Equal(t, int64(11), gw.failed[0].JobKey)
	assert.Equal(t, int32(0), gw.failed[0].Retries)
	assert.Contains(t, gw.failed[0].ErrorMessage, string(errors.ErrCodeRetrieveAndGenerateFailed))

	vars := decodeVariables(t, gw.failed[0].Variables)
	assert.Equal(t, false, vars["retryable"])
	api.AssertExpectations(t)
}

func TestHandleJob_ModelledFailuresAreThrown(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		output    *bedrockagentruntime.RetrieveAndGenerateOutput
		wantCode  errors.ErrorCode
	}{
		{
			name:      "missing prompt",
			variables: `{"question":"What is photosynthesis?"}`,
			wantCode:  errors.ErrCodeInvalidEvent,
		},
		{
			name:      "malformed variables",
			variables: `{not json`,
			wantCode:  errors.ErrCodeInvalidEvent,
		},
		{
			name:      "no citations",
			variables: `{"prompt":"uncited"}`,
			output:    createOutput("An answer without sources."),
			wantCode:  errors.ErrCodeNoSupportingCitation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockRetrieveAndGenerateAPI)
			if tt.output != nil {
				api.On("RetrieveAndGenerate", mock.Anything, mock.Anything).Return(tt.output, nil).Once()
			}

			h := createJobHandler(t, api, createValidConfig())
			client, gw := newGatewayJobClient()

			h.HandleJob(client, createMockJobWithRawVariables(21, tt.variables))

			assert.Empty(t, gw.completed)
			assert.Empty(t, gw.failed)
			require.Len(t, gw.thrown, 1)
			assert.Equal(t, string(tt.wantCode), gw.thrown[0].ErrorCode)
			if tt.output == nil {
				api.AssertNotCalled(t, "RetrieveAndGenerate", mock.Anything, mock.Anything)
			}
			api.AssertExpectations(t)
		})
	}
}

func TestHandleJob_MalformedModelOutputFails(t *testing.T) {
	api := new(MockRetrieveAndGenerateAPI)
	api.On("RetrieveAndGenerate", mock.Anything, mock.Anything).
		Return(&bedrockagentruntime.RetrieveAndGenerateOutput{}, nil).Once()

	h := createJobHandler(t, api, createValidConfig())
	client, gw := newGatewayJobClient()

	h.HandleJob(client, createMockJob(31, map[string]interface{}{"prompt": "shape"}))

	assert.Empty(t, gw.completed)
	assert.Empty(t, gw.thrown)
	require.Len(t, gw.failed, 1)
	assert.Equal(t, int32(0), gw.failed[0].Retries)
	assert.Contains(t, gw.failed[0].ErrorMessage, string(errors.ErrCodeResponseShapeInvalid))
}
