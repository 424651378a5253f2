package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

// ChannelPrefix namespaces the per-session pub/sub channels.
const ChannelPrefix = "storysync:story:"

type envelope struct {
	Origin string `json:"origin"`
	Frame  []byte `json:"frame"`
}

// RedisBus fans frames out to other relay instances over Redis pub/sub, one
// channel per session.
type RedisBus struct {
	client *redis.Client
	origin string
}

// NewRedisBus connects to addr and checks the server answers.
func NewRedisBus(ctx context.Context, addr string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisBus{client: client, origin: ksuid.New().String()}, nil
}

func (b *RedisBus) Publish(ctx context.Context, sessionID string, frame []byte) error {
	data, err := json.Marshal(envelope{Origin: b.origin, Frame: frame})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, ChannelPrefix+sessionID, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, deliver func(sessionID string, frame []byte)) error {
	pubsub := b.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be confirmed before reporting ready
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s*: %w", ChannelPrefix, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if sessionID, frame, ok := b.unwrap(msg.Channel, msg.Payload); ok {
				deliver(sessionID, frame)
			}
		}
	}
}

// unwrap decodes one pub/sub message. Frames this instance published are
// dropped.
func (b *RedisBus) unwrap(channel, payload string) (string, []byte, bool) {
	sessionID, found := strings.CutPrefix(channel, ChannelPrefix)
	if !found {
		return "", nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("⚠️  Dropped malformed bus message on %s: %v", channel, err)
		return "", nil, false
	}
	if env.Origin == b.origin {
		return "", nil, false
	}
	return sessionID, env.Frame, true
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
