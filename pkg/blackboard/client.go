package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the mirror.
// It is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a client for the given instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client for the given instance.
func NewClientFromURL(redisURL, instanceName string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewClient(opts, instanceName)
}

// Instance returns the instance name the client is scoped to.
func (c *Client) Instance() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CreateArtefact validates and stores an artefact, indexes it under its cycle
// and publishes it on the instance's event channel.
// Writing the same artefact twice is safe.
func (c *Client) CreateArtefact(ctx context.Context, a *Artefact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid artefact: %w", err)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ArtefactKey(c.instanceName, a.ID), ArtefactToHash(a))
		pipe.ZAdd(ctx, CycleKey(c.instanceName, a.CycleID), redis.Z{
			Score:  float64(a.Sequence),
			Member: a.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write artefact to Redis: %w", err)
	}

	artefactJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artefact for event: %w", err)
	}

	if err := c.rdb.Publish(ctx, ArtefactEventsChannel(c.instanceName), artefactJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish artefact event: %w", err)
	}

	return nil
}

// GetArtefact retrieves an artefact by ID.
// Returns (nil, redis.Nil) if the artefact doesn't exist; check with IsNotFound.
func (c *Client) GetArtefact(ctx context.Context, artefactID string) (*Artefact, error) {
	hashData, err := c.rdb.HGetAll(ctx, ArtefactKey(c.instanceName, artefactID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read artefact from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	artefact, err := HashToArtefact(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize artefact: %w", err)
	}

	return artefact, nil
}

// ListCycleArtefacts returns every artefact recorded for a cycle, in sequence order.
// An unknown cycle yields an empty slice.
func (c *Client) ListCycleArtefacts(ctx context.Context, cycleID string) ([]*Artefact, error) {
	ids, err := c.rdb.ZRange(ctx, CycleKey(c.instanceName, cycleID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cycle index: %w", err)
	}

	artefacts := make([]*Artefact, 0, len(ids))
	for _, id := range ids {
		a, err := c.GetArtefact(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("cycle %s artefact %s: %w", cycleID, id, err)
		}
		artefacts = append(artefacts, a)
	}

	return artefacts, nil
}

// ScanCycles returns the IDs of recorded cycles starting with prefix.
// It uses SCAN so large instances do not block Redis.
func (c *Client) ScanCycles(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := CycleKey(c.instanceName, "")
	iter := c.rdb.Scan(ctx, 0, keyPrefix+prefix+"*", 0).Iterator()

	var ids []string
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cycles: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// Subscription is an active Pub/Sub subscription to artefact events.
// Callers must Close it when done.
type Subscription struct {
	events <-chan *Artefact
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of artefact events.
// It is closed when the subscription is closed or its context is cancelled.
func (s *Subscription) Events() <-chan *Artefact {
	return s.events
}

// Errors returns non-fatal subscription errors, such as undecodable messages.
// The offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeArtefactEvents subscribes to artefact events for this instance.
// It returns once Redis has confirmed the subscription, so artefacts
// created afterwards are delivered.
func (c *Client) SubscribeArtefactEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ArtefactEventsChannel(c.instanceName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to artefact events: %w", err)
	}

	eventsChan := make(chan *Artefact, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var artefact Artefact
				if err := json.Unmarshal([]byte(msg.Payload), &artefact); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal artefact event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &artefact:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound reports whether err is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
