package retrieveandgenerate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-retrieval/internal/common/config"
	"kb-retrieval/internal/common/errors"
)

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return createMockJobWithRawVariables(key, string(variablesJSON))
}

func createMockJobWithRawVariables(key int64, variables string) entities.Job {
	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "kb-question-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_RetrieveAndGenerate",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                variables,
	}
	return entities.Job{ActivatedJob: activatedJob}
}

func TestParseJobVariables(t *testing.T) {
	job := createMockJob(12345, map[string]interface{}{
		"prompt":   "What is photosynthesis?",
		"customer": "acme",
	})

	event, err := parseJobVariables(job)
	require.NoError(t, err)

	req, err := ParseEvent(event)
	require.NoError(t, err)
	assert.Equal(t, "What is photosynthesis?", req.Prompt)
}

func TestParseJobVariables_MissingPrompt(t *testing.T) {
	event, err := parseJobVariables(createMockJob(1, map[string]interface{}{"question": "x"}))
	require.NoError(t, err)

	_, err = ParseEvent(event)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidEvent))
}

func TestParseJobVariables_Malformed(t *testing.T) {
	_, err := parseJobVariables(createMockJobWithRawVariables(2, "{not json"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidEvent))
}

func TestJobVariables(t *testing.T) {
	result := &Result{Text: "Photosynthesis converts light to energy.", Citation: "see source A"}
	resp, err := BuildResponse(result)
	require.NoError(t, err)

	vars := jobVariables(resp, result)
	assert.Equal(t, 200, vars["statusCode"])
	assert.Equal(t, resp.Body, vars["body"])
	assert.Equal(t, "Photosynthesis converts light to energy.", vars["text"])
	assert.Equal(t, "see source A", vars["citations"])
}

func TestJobErrorDisposition(t *testing.T) {
	tests := []struct {
		err  *errors.StandardError
		want errors.Disposition
	}{
		{errors.NewInvalidEventError("prompt missing"), errors.DispositionThrow},
		{errors.NewNoSupportingCitationError("empty"), errors.DispositionThrow},
		{errors.NewWorkerDisabledError(TaskType), errors.DispositionThrow},
		{errors.NewResponseShapeInvalidError("output.text missing"), errors.DispositionFail},
		{errors.NewRetrieveAndGenerateFailedError(assert.AnError), errors.DispositionFail},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Decide(tt.err))
		})
	}
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	appConfig := &config.Config{
		Bedrock: config.BedrockConfig{
			Region:          "us-west-2",
			KnowledgeBaseID: "KBAPP",
			ModelARN:        "arn:aws:bedrock:us-west-2::foundation-model/anthropic.claude-v2",
		},
		Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: false, MaxJobsActive: 2, Timeout: 45000},
		},
	}

	cfg := createConfigFromAppConfig(appConfig, nil)
	assert.Equal(t, "KBAPP", cfg.KnowledgeBaseID)
	assert.Equal(t, "arn:aws:bedrock:us-west-2::foundation-model/anthropic.claude-v2", cfg.ModelARN)
	assert.False(t, cfg.IsEnabled())
	assert.Equal(t, 2, cfg.MaxJobsActive)
	assert.Equal(t, 45*time.Second, cfg.JobTimeout)
	require.NoError(t, cfg.Validate())

	custom := createConfigFromAppConfig(appConfig, &Config{Enabled: boolPtr(true), KnowledgeBaseID: "KBCUSTOM"})
	assert.True(t, custom.IsEnabled())
	assert.Equal(t, "KBCUSTOM", custom.KnowledgeBaseID)
	assert.Equal(t, 2, custom.MaxJobsActive)
}

func TestCreateConfigFromAppConfig_Defaults(t *testing.T) {
	cfg := createConfigFromAppConfig(&config.Config{
		Bedrock: config.BedrockConfig{KnowledgeBaseID: "KB1"},
	}, nil)

	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, config.DefaultModelARN, cfg.ModelARN)
	assert.Equal(t, 5, cfg.MaxJobsActive)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}

func TestCreateConfigFromAppConfig_PartialCustomKeepsEnabledFlag(t *testing.T) {
	appConfig := func(enabled bool) *config.Config {
		return &config.Config{
			Bedrock: config.BedrockConfig{KnowledgeBaseID: "KBAPP"},
			Workers: map[string]config.WorkerConfig{
				TaskType: {Enabled: enabled},
			},
		}
	}

	tests := []struct {
		name    string
		app     bool
		custom  *Config
		enabled bool
	}{
		{"enabled app, knowledge base override", true, &Config{KnowledgeBaseID: "KBCUSTOM"}, true},
		{"disabled app, knowledge base override", false, &Config{KnowledgeBaseID: "KBCUSTOM"}, false},
		{"enabled app, explicit disable", true, &Config{Enabled: boolPtr(false)}, false},
		{"disabled app, explicit enable", false, &Config{Enabled: boolPtr(true)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createConfigFromAppConfig(appConfig(tt.app), tt.custom)
			assert.Equal(t, tt.enabled, cfg.IsEnabled())
		})
	}
}

func TestConfig_IsEnabledWhenUnset(t *testing.T) {
	assert.True(t, (&Config{}).IsEnabled())
	assert.False(t, (&Config{Enabled: boolPtr(false)}).IsEnabled())
}
