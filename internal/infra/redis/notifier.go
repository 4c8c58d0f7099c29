package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const teacherChannelPrefix = "notifications:teacher:"

// Notification is the JSON body published on a teacher channel.
type Notification struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type publication struct {
	channel string
	body    []byte
}

// Notifier publishes teacher notifications through Redis pub/sub so every instance
// holding one of the teacher's sockets can deliver them. Publishing happens on a
// single goroutine; callers never wait on Redis.
type Notifier struct {
	client  *redis.Client
	logger  *zap.Logger
	pending chan publication
}

func NewNotifier(client *redis.Client, logger *zap.Logger, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{client: client, logger: logger, pending: make(chan publication, buffer)}
}

func (n *Notifier) NotifyTeacher(_ context.Context, teacherID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("encode notification", zap.String("event", event), zap.Error(err))
		return
	}
	body, err := json.Marshal(Notification{Type: event, Payload: raw})
	if err != nil {
		n.logger.Error("encode notification", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case n.pending <- publication{channel: teacherChannelPrefix + teacherID, body: body}:
	default:
		n.logger.Warn("notification dropped", zap.String("teacher_id", teacherID), zap.String("event", event))
	}
}

// Run publishes queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-n.pending:
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := n.client.Publish(pubCtx, p.channel, p.body).Err(); err != nil {
				n.logger.Warn("publish notification", zap.String("channel", p.channel), zap.Error(err))
			}
			cancel()
		}
	}
}

// Relay subscribes to every teacher channel and hands each message to deliver
// until ctx is done.
func Relay(ctx context.Context, client *redis.Client, logger *zap.Logger, deliver func(teacherID string, body []byte)) error {
	sub := client.PSubscribe(ctx, teacherChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	logger.Info("teacher notification relay subscribed")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver(strings.TrimPrefix(msg.Channel, teacherChannelPrefix), []byte(msg.Payload))
		}
	}
}
