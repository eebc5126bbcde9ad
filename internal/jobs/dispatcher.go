package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"accounts/backend/internal/usecase/account"
)

const resetSubject = "Reset your password"

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns notifications into queued mail:send tasks.
type Dispatcher struct {
	client   enqueuer
	resetURL string
	maxRetry int
	logger   logrus.FieldLogger
}

var _ account.Notifier = (*Dispatcher)(nil)

// NewDispatcher constructs a dispatcher. resetURL, when set, is the page the
// email links to; the token is appended as a query parameter.
func NewDispatcher(client enqueuer, resetURL string, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		client:   client,
		resetURL: resetURL,
		maxRetry: 5,
		logger:   logger.WithField("component", "dispatcher"),
	}
}

// SendPasswordReset enqueues the reset email for email.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, email, token string) error {
	task, err := NewSendEmailTask(SendEmailPayload{
		To:      email,
		Subject: resetSubject,
		Body:    d.resetBody(token),
	})
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(d.maxRetry))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskTypeSendEmail, err)
	}
	d.logger.WithField("task_id", info.ID).Debug("reset email queued")
	return nil
}

func (d *Dispatcher) resetBody(token string) string {
	var b strings.Builder
	b.WriteString("A password reset was requested for your account.\n\n")
	if d.resetURL != "" {
		link, err := url.Parse(d.resetURL)
		if err == nil {
			q := link.Query()
			q.Set("token", token)
			link.RawQuery = q.Encode()
			fmt.Fprintf(&b, "Follow this link to choose a new password:\n%s\n\n", link.String())
		}
	}
	fmt.Fprintf(&b, "Reset code: %s\n\nIf you did not ask for this, ignore this email.\n", token)
	return b.String()
}
