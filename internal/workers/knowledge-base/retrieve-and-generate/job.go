package retrieveandgenerate

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"kb-retrieval/internal/common/errors"
	"kb-retrieval/internal/common/metrics"
)

// HandleJob runs the same pipeline as Handle for a Zeebe job. The job's
// variables play the role of the event.
func (h *Handler) HandleJob(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.JobTimeout)
	defer cancel()

	h.logger.Info("Processing retrieve-and-generate job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})

	if !h.config.IsEnabled() {
		metrics.InvocationsFailed.WithLabelValues(metrics.SourceJob, string(errors.ErrCodeWorkerDisabled)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, errors.NewWorkerDisabledError(TaskType))
		return
	}

	event, err := parseJobVariables(job)
	if err != nil {
		metrics.InvocationsFailed.WithLabelValues(metrics.SourceJob, string(errors.CodeOf(err))).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	resp, result, err := h.process(ctx, metrics.SourceJob, event)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, jobVariables(resp, result))
}

func parseJobVariables(job entities.Job) (Event, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidEventError("failed to parse job variables: " + err.Error())
	}
	return Event(variables), nil
}

// jobVariables exposes the envelope and the extracted fields so later
// process steps need not decode the body.
func jobVariables(resp *Response, result *Result) map[string]interface{} {
	return map[string]interface{}{
		"statusCode": resp.StatusCode,
		"body":       resp.Body,
		"text":       result.Text,
		"citations":  result.Citation,
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, variables map[string]interface{}) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return
	}

	h.logger.Info("Completed retrieve-and-generate job", map[string]interface{}{
		"jobKey": job.GetKey(),
		"worker": TaskType,
	})
}
