package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// EmailHandler delivers queued emails through a Mailer.
type EmailHandler struct {
	mailer Mailer
	logger logrus.FieldLogger
}

// NewEmailHandler constructs a handler for TaskTypeSendEmail.
func NewEmailHandler(mailer Mailer, logger logrus.FieldLogger) *EmailHandler {
	return &EmailHandler{mailer: mailer, logger: logger.WithField("task", TaskTypeSendEmail)}
}

// ProcessTask implements asynq.Handler. Undecodable payloads are not retried.
func (h *EmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.WithError(err).Error("decode payload")
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeSendEmail, err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("%s payload has no recipient: %w", TaskTypeSendEmail, asynq.SkipRetry)
	}

	if err := h.mailer.Send(ctx, payload); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	h.logger.WithField("subject", payload.Subject).Info("email delivered")
	return nil
}
