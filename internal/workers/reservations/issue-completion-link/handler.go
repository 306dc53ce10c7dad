package issuecompletionlink

import (
	"context"
	stderrors "errors"

	"adr-workers/internal/common/camunda"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"
	"adr-workers/internal/notify"
	"adr-workers/internal/reservations"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "issue-completion-link"

type LinkSender interface {
	SendCompletionLink(ctx context.Context, reservationID int64, sendVia string) (*reservations.LinkResult, error)
}

type Handler struct {
	config       *Config
	sender       LinkSender
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, sender LinkSender, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		sender:       sender,
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

// Execute issues a fresh completion link and sends it. A link that reached
// nobody throws NOTIFICATION_SEND_FAILED so the process can choose another
// channel.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	via := input.SendVia
	if via == "" {
		via = h.config.DefaultSendVia
	}

	res, err := h.sender.SendCompletionLink(ctx, input.ReservationID, via)
	if err != nil {
		return nil, err
	}

	out := &Output{
		CompletionURL: res.URL,
		ExpiresAt:     res.ExpiresAt,
		SMSSent:       res.Sent[string(notify.ChannelSMS)],
		EmailSent:     res.Sent[string(notify.ChannelEmail)],
		Message:       res.Message,
	}
	if !out.SMSSent && !out.EmailSent {
		return nil, errors.NewNotificationSendFailedError(notify.EventCompletionLink,
			stderrors.New("completion link was not delivered on any channel"))
	}

	h.logger.Info("completion link sent", map[string]interface{}{
		"reservationId": input.ReservationID,
		"sendVia":       via,
		"expiresAt":     res.ExpiresAt,
	})
	return out, nil
}
