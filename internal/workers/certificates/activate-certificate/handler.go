package activatecertificate

import (
	"context"
	"time"

	"adr-workers/internal/certificates"
	"adr-workers/internal/common/camunda"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "activate-certificate"

type Activator interface {
	Activate(ctx context.Context, in certificates.ActivateInput) (*certificates.ActivateResult, error)
}

type Handler struct {
	config       *Config
	activator    Activator
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, activator Activator, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		activator:    activator,
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

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, "must be a valid YYYY-MM-DD date")
	}
	return t, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	in := certificates.ActivateInput{
		PersonID: input.ParticipantID,
		Number:   input.CertificateNumber,
		Notes:    input.Notes,
	}

	var err error
	if in.ExpiryDate, err = parseDate("expiryDate", input.ExpiryDate); err != nil {
		return nil, err
	}
	if input.IssueDate != "" {
		issued, err := parseDate("issueDate", input.IssueDate)
		if err != nil {
			return nil, err
		}
		in.IssueDate = &issued
	}

	res, err := h.activator.Activate(ctx, in)
	if err != nil {
		return nil, err
	}

	h.logger.Info("certificate activated", map[string]interface{}{
		"participantId": input.ParticipantID,
		"certificateId": res.Certificate.ID,
		"renewed":       res.Renewed,
	})
	return &Output{
		CertificateID: res.Certificate.ID,
		ExpiryDate:    res.Certificate.ExpiryDate.Format("2006-01-02"),
		IsFirst:       res.IsFirst,
		Renewed:       res.Renewed,
	}, nil
}
