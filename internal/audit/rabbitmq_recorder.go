package audit

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "AgentPlane/internal/errors"
)

// RabbitMQRecorder 把审计事件发布到持久化队列，供外部系统
// （报表、SIEM）消费。控制面自身不消费该队列。
type RabbitMQRecorder struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewRabbitMQRecorder 建立连接并声明持久化队列。
func NewRabbitMQRecorder(url, queue string) (*RabbitMQRecorder, error) {
	if queue == "" {
		queue = "agentplane.audit"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "dial rabbitmq")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open rabbitmq channel")
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "declare audit queue")
	}
	return &RabbitMQRecorder{conn: conn, channel: channel, queue: queue}, nil
}

func (r *RabbitMQRecorder) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeAuditFailure, "encode audit event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.channel.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Body:         body,
	})
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeAuditFailure, "publish audit event")
	}
	return nil
}

func (r *RabbitMQRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
