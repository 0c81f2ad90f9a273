package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

var _ ports.Notifier = (*RabbitMQBroker)(nil)

// ShowNotification publishes n for the device-side consumer. The message id
// is the notification id, so consumers can collapse repeats.
func (rmq *RabbitMQBroker) ShowNotification(ctx context.Context, n ports.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
		return ctx.Err()
	}

	_, err = rmq.cb.Execute(func() (interface{}, error) {
		err := rmq.ch.PublishWithContext(
			ctx,
			"",            // exchange (default)
			rmq.queueName, // routing key == queue name
			false,         // mandatory
			false,         // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    messageID(n),
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		return nil, err
	})
	if err != nil {
		return domain.NewRemoteError("publish notification", err)
	}
	rmq.log.Debug("notification published", zap.String("uid", n.UserID), zap.Int32("id", n.ID))
	return nil
}

func messageID(n ports.Notification) string {
	return n.UserID + ":" + strconv.FormatInt(int64(n.ID), 10)
}
