package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// RedisStream reads and writes a Redis Streams consumer group, the
// production transport for the kill-report stream.
type RedisStream struct {
	client *redis.Client
	stream string
	group string
	consumer string
	logger agentlog.Logger
}

// RedisStreamOptions configures a RedisStream.
type RedisStreamOptions struct {
	RedisURL string
	Stream string
	Group string
	Consumer string
	Logger agentlog.Logger
}

// NewRedisStream connects to Redis and ensures the consumer group exists,
// creating the stream itself (MKSTREAM) if this is the first consumer.
func NewRedisStream(ctx context.Context, opts RedisStreamOptions) (*RedisStream, error) {
	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	err = client.XGroupCreateMkStream(ctx, opts.Stream, opts.Group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", opts.Group, err)
	}

	if opts.Logger != nil {
		opts.Logger.Info("redis stream consumer ready", agentlog.Fields{
			"stream": opts.Stream, "group": opts.Group, "consumer": opts.Consumer,
		})
	}

	return &RedisStream{
		client: client,
		stream: opts.Stream,
		group: opts.Group,
		consumer: opts.Consumer,
		logger: opts.Logger,
	}, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

func (r *RedisStream) ReadGroup(ctx context.Context, block time.Duration, count int) ([]Message, error) {
	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: r.group,
		Consumer: r.consumer,
		Streams: []string{r.stream, ">"},
		Count: int64(count),
		Block: block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup failed: %w", err)
	}
	return toMessages(res), nil
}

func (r *RedisStream) Pending(ctx context.Context) ([]string, error) {
	res, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group: r.group,
		Consumer: r.consumer,
		Start: "-",
		End: "+",
		Count: 1000,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending failed: %w", err)
	}
	ids := make([]string, 0, len(res))
	for _, p := range res {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (r *RedisStream) Claim(ctx context.Context, id string) (Message, error) {
	res, err := r.client.XRange(ctx, r.stream, id, id).Result()
	if err != nil {
		return Message{}, fmt.Errorf("xrange failed: %w", err)
	}
	if len(res) == 0 {
		return Message{}, fmt.Errorf("message %s not found", id)
	}
	msgs := toMessages([]redis.XStream{{Stream: r.stream, Messages: res}})
	return msgs[0], nil
}

func (r *RedisStream) Ack(ctx context.Context, id string) error {
	if err := r.client.XAck(ctx, r.stream, r.group, id).Err(); err != nil {
		return fmt.Errorf("xack failed for %s: %w", id, err)
	}
	return nil
}

func (r *RedisStream) Add(ctx context.Context, fields models.WireEntry) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}(fields),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed: %w", err)
	}
	return id, nil
}

func (r *RedisStream) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}

func toMessages(streams []redis.XStream) []Message {
	var out []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, Message{ID: m.ID, Fields: models.WireEntry(m.Values)})
		}
	}
	return out
}
