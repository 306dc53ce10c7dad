package resolveparticipant

import (
	"context"

	"adr-workers/internal/common/camunda"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"
	"adr-workers/internal/identity"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "resolve-participant"

type Resolver interface {
	Resolve(ctx context.Context, c identity.Contact) (*identity.Result, error)
}

type Handler struct {
	config       *Config
	resolver     Resolver
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, resolver Resolver, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		resolver:     resolver,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.resolver.Resolve(ctx, input.contact())
	if err != nil {
		return nil, err
	}

	h.logger.Info("participant resolved", map[string]interface{}{
		"participantId": res.Person.ID,
		"isNew":         res.Created,
		"matchedBy":     string(res.MatchedBy),
	})

	fields := res.FieldsUpdated
	if fields == nil {
		fields = []string{}
	}
	return &Output{
		ParticipantID:    res.Person.ID,
		ParticipantIsNew: res.Created,
		MatchedBy:        string(res.MatchedBy),
		FieldsUpdated:    fields,
		Phone:            res.Person.Phone,
		Email:            res.Person.Email,
	}, nil
}
