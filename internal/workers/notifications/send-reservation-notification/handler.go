package sendreservationnotification

import (
	"context"
	stderrors "errors"
	"strings"

	"adr-workers/internal/common/camunda"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"
	"adr-workers/internal/notify"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "send-reservation-notification"

type Notifier interface {
	Notify(ctx context.Context, event string, reservationID int64) (*notify.Outcome, error)
}

type Handler struct {
	config       *Config
	notifier     Notifier
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, notifier Notifier, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		notifier:     notifier,
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

// Execute sends the notification. When every attempt failed the job throws
// NOTIFICATION_SEND_FAILED; partial delivery completes the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := h.notifier.Notify(ctx, input.Event, input.ReservationID)
	if err != nil {
		return nil, err
	}

	if outcome.Sent() == 0 && outcome.Failed() > 0 {
		var msgs []string
		for _, a := range outcome.Attempts {
			if a.Error != "" {
				msgs = append(msgs, string(a.Channel)+": "+a.Error)
			}
		}
		return nil, errors.NewNotificationSendFailedError(input.Event, stderrors.New(strings.Join(msgs, "; ")))
	}

	h.logger.Info("reservation notification sent", map[string]interface{}{
		"reservationId": input.ReservationID,
		"event":         input.Event,
		"status":        outcome.Status(),
	})

	return &Output{
		Event:     input.Event,
		Status:    outcome.Status(),
		Sent:      outcome.Sent(),
		Failed:    outcome.Failed(),
		Delivered: outcome.Delivered(),
	}, nil
}
