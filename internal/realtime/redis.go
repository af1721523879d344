package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// OpenRedis parses the URL and checks the connection.
func OpenRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// RedisNotifier publishes events on Redis channels named after the topic, so
// every API instance's hub can forward them to its own clients.
type RedisNotifier struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

func NewRedisNotifier(client *redis.Client, log logrus.FieldLogger) *RedisNotifier {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "realtime-publish",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	return &RedisNotifier{client: client, breaker: breaker}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic, event string, payload any) error {
	data, err := encode(topic, event, payload)
	if err != nil {
		return err
	}
	_, err = n.breaker.Execute(func() (any, error) {
		return nil, n.client.Publish(ctx, topic, data).Err()
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
