package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ListenForNotifications consumes enqueue notifications and wakes the worker
// for each valid one. Malformed messages are rejected without requeue. It
// returns when ctx is done or the delivery channel closes.
func (w *Worker) ListenForNotifications(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Notification listener started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Notification listener stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
			w.handleNotification(delivery)
		}
	}
}

func (w *Worker) handleNotification(delivery amqp.Delivery) {
	var msg domain.JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		w.logger.Error("Failed to parse notification JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		w.reject(delivery)
		return
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		w.logger.Error("Invalid job_id in notification - not a UUID",
			slog.String("job_id", msg.JobID),
		)
		w.reject(delivery)
		return
	}

	if err := delivery.Ack(false); err != nil {
		w.logger.Error("Failed to ACK notification",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Debug("Enqueue notification received",
		slog.String("job_id", msg.JobID),
		slog.String("payload_ref", msg.PayloadRef),
	)
	w.Wake()
}

func (w *Worker) reject(delivery amqp.Delivery) {
	if err := delivery.Nack(false, false); err != nil {
		w.logger.Error("Failed to NACK notification",
			slog.String("error", err.Error()),
		)
	}
}
