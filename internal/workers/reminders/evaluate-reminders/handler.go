package evaluatereminders

import (
	"context"
	"time"

	"adr-workers/internal/common/camunda"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"
	"adr-workers/internal/reminders"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Both reminder passes share this handler; each runs under its own task type.
const (
	CertificateTaskType = "evaluate-certificate-reminders"
	CourseTaskType      = "evaluate-course-reminders"
)

type Runner interface {
	Run(ctx context.Context, opts reminders.RunOptions) (*reminders.Summary, error)
}

type Handler struct {
	taskType     string
	config       *Config
	runner       Runner
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(taskType string, config *Config, runner Runner, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": taskType})
	return &Handler{
		taskType:     taskType,
		config:       config,
		runner:       runner,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := validation.DecodeVariables(job.Variables, InputSchema, &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
}

func (h *Handler) TaskType() string {
	return h.taskType
}

// Execute runs one evaluation pass. Individual delivery failures are
// reported in the output; only a failed scan fails the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	opts := reminders.RunOptions{DryRun: input.DryRun}
	if input.Date != "" {
		day, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return nil, errors.NewValidationError("date", "must be YYYY-MM-DD")
		}
		opts.Today = day
	}

	sum, err := h.runner.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	h.logger.Info(sum.Message, map[string]interface{}{"sent": sum.Sent, "total": sum.Total, "dryRun": sum.DryRun})

	details := sum.Details
	if h.config.MaxDetails > 0 && len(details) > h.config.MaxDetails {
		details = details[:h.config.MaxDetails]
	}
	return &Output{
		Message: sum.Message,
		Date:    sum.Date,
		Sent:    sum.Sent,
		Total:   sum.Total,
		Failed:  sum.Total - sum.Sent,
		DryRun:  sum.DryRun,
		Details: details,
	}, nil
}
