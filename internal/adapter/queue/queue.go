package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/pkg/config"
)

const (
	DriverNATS     = "nats"
	DriverRabbitMQ = "rabbitmq"
)

// MessageQueue defines the interface for a message queue adapter
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}

// New connects the driver named in cfg. It returns nil, nil when no driver
// is configured.
func New(cfg config.QueueConfig, log *zap.Logger) (MessageQueue, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case DriverNATS:
		q, err := NewNATSQueue(cfg.URL, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	case DriverRabbitMQ:
		q, err := NewRabbitMQQueue(cfg.URL, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
