package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shorttrack/apiserver/internal/mq"
	log "github.com/sirupsen/logrus"
)

const (
	jobKindEmail = "email"
	jobKindSMS   = "sms"
)

// Job is the queued form of an outbound message.
type Job struct {
	Kind  string `json:"kind"`
	Email *Email `json:"email,omitempty"`
	SMS   *SMS   `json:"sms,omitempty"`
}

// Publisher is the subset of the message queue used to enqueue jobs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// QueueSender enqueues messages for a Worker to send. It satisfies both
// Mailer and SMSSender, so a Gateway built on it reports a message as
// delivered once the broker has accepted it.
type QueueSender struct {
	publisher Publisher
	channel   string
}

func NewQueueSender(publisher Publisher, channel string) *QueueSender {
	return &QueueSender{publisher: publisher, channel: channel}
}

// SendEmail implements Mailer.
func (q *QueueSender) SendEmail(ctx context.Context, msg Email) error {
	return q.enqueue(ctx, Job{Kind: jobKindEmail, Email: &msg})
}

// SendSMS implements SMSSender.
func (q *QueueSender) SendSMS(ctx context.Context, msg SMS) error {
	return q.enqueue(ctx, Job{Kind: jobKindSMS, SMS: &msg})
}

func (q *QueueSender) enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.publisher.Publish(ctx, q.channel, data, map[string]string{"kind": job.Kind})
	return err
}

// Worker drains queued jobs and sends them through the real channels.
type Worker struct {
	mailer Mailer
	sms    SMSSender
}

// NewWorker builds a Worker. A job for a channel that is nil is dropped
// with a warning.
func NewWorker(mailer Mailer, sms SMSSender) *Worker {
	return &Worker{mailer: mailer, sms: sms}
}

// Handle implements mq.Handler. Returning an error asks the broker to
// redeliver the job.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		log.WithError(err).WithField("message_id", msg.ID).Warn("delivery: dropping malformed job")
		return nil
	}

	switch job.Kind {
	case jobKindEmail:
		if job.Email == nil {
			return nil
		}
		if w.mailer == nil {
			log.WithField("message_id", msg.ID).Warn("delivery: email not configured, dropping job")
			return nil
		}
		return w.mailer.SendEmail(ctx, *job.Email)
	case jobKindSMS:
		if job.SMS == nil {
			return nil
		}
		if w.sms == nil {
			log.WithField("message_id", msg.ID).Warn("delivery: sms not configured, dropping job")
			return nil
		}
		return w.sms.SendSMS(ctx, *job.SMS)
	default:
		log.WithField("kind", job.Kind).Warn("delivery: unknown job kind")
		return nil
	}
}

// Run subscribes the worker to channel until ctx is done.
func (w *Worker) Run(ctx context.Context, queue *mq.MQ, channel string) error {
	if queue == nil {
		return errors.New("delivery: message queue is required")
	}
	log.Infof("delivery worker subscribed to %s", channel)
	if err := queue.Subscribe(ctx, channel, w.Handle); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("delivery worker: %w", err)
	}
	return nil
}
