// SPDX-License-Identifier: MIT

// Package queue implements the task fabric over Redis lists. Every worker
// role owns two inbound queues, command and inbound; enqueueing is always
// addressed to a role, so the outbound hop of one worker is the inbound
// list of the next. LPUSH plus BRPOP keeps each list FIFO, and the broker's
// at-least-once delivery is absorbed by ledger idempotence downstream.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/metrics"
	"github.com/jdswan/sonicat/internal/task"
)

// Queue names within a role.
const (
	Command = "command"
	Inbound = "inbound"
)

// ErrEmpty reports that a bounded-wait dequeue found no task.
var ErrEmpty = errors.New("queue: empty")

// Config locates the broker.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Broker is a handle on the task fabric. One instance per process.
type Broker struct {
	client *redis.Client
	logger zerolog.Logger
}

// Connect dials the broker and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  -1, // BRPOP manages its own deadline
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("queue: connect %s: %w", cfg.Addr, err)
	}
	logger := log.WithComponent("queue")
	logger.Info().
		Str(log.FieldEvent, "queue.connected").
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to broker")
	return &Broker{client: client, logger: logger}, nil
}

func key(role, queue string) string {
	return "sonicat:q:" + role + ":" + queue
}

// Enqueue appends a task to the named queue of the target role. An empty
// target drops the task; the router uses this for terminal hops.
func (b *Broker) Enqueue(ctx context.Context, target, queue string, t *task.Task) error {
	if target == "" {
		b.logger.Debug().
			Str(log.FieldEvent, "queue.dropped").
			Str(log.FieldTaskID, t.ID).
			Str(log.FieldApp, t.AppName).
			Msg("terminal route, task dropped")
		return nil
	}
	raw, err := t.Marshal()
	if err != nil {
		metrics.QueueOp("enqueue", "error")
		return err
	}
	if err := b.client.LPush(ctx, key(target, queue), raw).Err(); err != nil {
		metrics.QueueOp("enqueue", "error")
		return fmt.Errorf("queue: enqueue to %s/%s: %w", target, queue, err)
	}
	metrics.QueueOp("enqueue", "ok")
	return nil
}

// Dequeue pops the oldest task from the named queue of a role, waiting up
// to wait for one to arrive. Returns ErrEmpty when the wait elapses.
func (b *Broker) Dequeue(ctx context.Context, role, queue string, wait time.Duration) (*task.Task, error) {
	res, err := b.client.BRPop(ctx, wait, key(role, queue)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.QueueOp("dequeue", "empty")
		return nil, ErrEmpty
	}
	if err != nil {
		metrics.QueueOp("dequeue", "error")
		return nil, fmt.Errorf("queue: dequeue %s/%s: %w", role, queue, err)
	}
	// BRPop yields [key, value].
	if len(res) != 2 {
		metrics.QueueOp("dequeue", "error")
		return nil, fmt.Errorf("queue: dequeue %s/%s: malformed reply", role, queue)
	}
	t, err := task.Unmarshal([]byte(res[1]))
	if err != nil {
		metrics.QueueOp("dequeue", "error")
		return nil, err
	}
	metrics.QueueOp("dequeue", "ok")
	return t, nil
}

// Next returns the role's next task, preferring command over inbound. The
// command poll is non-blocking; the inbound poll waits up to wait.
func (b *Broker) Next(ctx context.Context, role string, wait time.Duration) (*task.Task, error) {
	t, err := b.Dequeue(ctx, role, Command, time.Millisecond)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrEmpty) {
		return nil, err
	}
	return b.Dequeue(ctx, role, Inbound, wait)
}

// Depth reports the current length of a role's queue and records it.
func (b *Broker) Depth(ctx context.Context, role, queue string) (int64, error) {
	n, err := b.client.LLen(ctx, key(role, queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth %s/%s: %w", role, queue, err)
	}
	metrics.SetQueueDepth(role, queue, n)
	return n, nil
}

// Depths reports command and inbound depths for each role.
func (b *Broker) Depths(ctx context.Context, roles []string) (map[string]map[string]int64, error) {
	out := make(map[string]map[string]int64, len(roles))
	for _, role := range roles {
		out[role] = make(map[string]int64, 2)
		for _, q := range []string{Command, Inbound} {
			n, err := b.Depth(ctx, role, q)
			if err != nil {
				return nil, err
			}
			out[role][q] = n
		}
	}
	return out, nil
}

// Ping verifies broker liveness.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the client.
func (b *Broker) Close() error {
	return b.client.Close()
}
