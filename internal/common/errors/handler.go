package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports job failures back to the workflow engine.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Disposition is what the engine is told about a failed job.
type Disposition string

const (
	// DispositionThrow raises a BPMN error the process model can catch.
	DispositionThrow Disposition = "throw"
	// DispositionFail fails the job with zero retries, creating an incident.
	DispositionFail Disposition = "fail"
)

// Decide picks the disposition for a normalized error. Validation and
// business errors are modelled outcomes and are thrown; technical errors
// become incidents. Nothing is retried here.
func Decide(stdErr *StandardError) Disposition {
	switch GetErrorCategory(stdErr.Code) {
	case "VALIDATION", "BUSINESS":
		return DispositionThrow
	default:
		return DispositionFail
	}
}

// HandleJobError normalizes err, logs it and reports it to the engine.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) Disposition {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	disposition := Decide(stdErr)

	h.logError(job, stdErr, bpmnErr, disposition)

	if disposition == DispositionThrow {
		h.throwBPMNError(ctx, client, job, bpmnErr)
	} else {
		h.failJob(ctx, client, job, bpmnErr)
	}
	return disposition
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewFailJobCommand().
		JobKey(job.GetKey()).
		Retries(0).
		ErrorMessage(bpmnErr.Error())

	if withVars, err := cmd.VariablesFromString(errorVariablesJSON(bpmnErr)); err == nil {
		if _, err := withVars.Send(ctx); err != nil {
			h.logSendFailure("fail", job, err)
		}
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logSendFailure("fail", job, err)
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.GetKey()).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if withVars, err := cmd.VariablesFromString(errorVariablesJSON(bpmnErr)); err == nil {
		if _, err := withVars.Send(ctx); err != nil {
			h.logSendFailure("throw", job, err)
		}
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logSendFailure("throw", job, err)
	}
}

func errorVariablesJSON(bpmnErr *BPMNError) string {
	data, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (h *ErrorHandler) logSendFailure(command string, job entities.Job, err error) {
	h.logger.Error("Failed to send job error command", map[string]interface{}{
		"command": command,
		"jobKey":  job.GetKey(),
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, disposition Disposition) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.GetKey(),
		"jobType":          job.GetType(),
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"disposition":      string(disposition),
		"workflowInstance": job.GetProcessInstanceKey(),
	})
}
