package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
)

const (
	subscriberBufferSize = 16
	// remote events are relayed on every configured broker; this many ids are remembered to drop repeats
	seenEventsCapacity = 512
)

// StatusEvent announces a committed change of a task status record.
type StatusEvent struct {
	Key    models.SubmissionKey `json:"key"`
	Status models.Status        `json:"status"`
	Output string               `json:"output,omitempty"`
	Source string               `json:"source"`
	At     time.Time            `json:"at"`
}

// Publisher announces status changes.
type Publisher interface {
	Publish(ctx context.Context, event StatusEvent)
}

// Listener observes every event delivered on this node.
type Listener func(event StatusEvent)

type envelope struct {
	ID    string      `json:"id"`
	Node  string      `json:"node"`
	Event StatusEvent `json:"event"`
}

// Hub fans status events out to local websocket subscribers and, when configured,
// to other nodes through redis pub/sub and nats.
type Hub struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string

	mu          sync.RWMutex
	subscribers map[int]map[chan StatusEvent]struct{}
	listeners   []Listener

	seenMu    sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
}

// NewHub constructs a hub. Either client may be nil.
func NewHub(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Hub {
	hub := &Hub{
		redis:       redisClient,
		nats:        natsConn,
		logger:      logger.With().Str("component", "status_events").Logger(),
		nodeID:      uuid.NewString(),
		subscribers: make(map[int]map[chan StatusEvent]struct{}),
		seen:        make(map[string]struct{}, seenEventsCapacity),
	}
	if channelBase != "" {
		hub.redisChannel = channelBase + ":statuses"
		hub.natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".statuses"
	}
	return hub
}

// Start consumes remote events until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	if h.redis != nil && h.redisChannel != "" {
		pubsub := h.redis.Subscribe(ctx, h.redisChannel)
		go h.consumeRedis(ctx, pubsub)
	}
	if h.nats != nil && h.natsSubject != "" {
		h.consumeNATS(ctx)
	}
}

// AddListener registers a callback run for every delivered event.
func (h *Hub) AddListener(listener Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, listener)
}

// Subscribe streams the events of one group. The returned function unsubscribes.
func (h *Hub) Subscribe(groupID int) (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, subscriberBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[groupID]; !ok {
		h.subscribers[groupID] = make(map[chan StatusEvent]struct{})
	}
	h.subscribers[groupID][ch] = struct{}{}
	h.mu.Unlock()
	observability.StatusStreamsActive().Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if subscribers, ok := h.subscribers[groupID]; ok {
				delete(subscribers, ch)
				if len(subscribers) == 0 {
					delete(h.subscribers, groupID)
				}
			}
			close(ch)
			h.mu.Unlock()
			observability.StatusStreamsActive().Dec()
		})
	}
}

// Publish delivers the event locally and forwards it to the configured brokers.
// Broker failures are logged; the status change itself is already committed.
func (h *Hub) Publish(ctx context.Context, event StatusEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	h.deliver(event, "local")

	payload, err := json.Marshal(envelope{ID: uuid.NewString(), Node: h.nodeID, Event: event})
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode status event")
		return
	}

	if h.redis != nil && h.redisChannel != "" {
		if err := h.redis.Publish(ctx, h.redisChannel, payload).Err(); err != nil {
			h.logger.Warn().Err(err).Str("key", event.Key.String()).Msg("failed to publish status event to redis")
		}
	}
	if h.nats != nil && h.natsSubject != "" {
		if err := h.nats.Publish(h.natsSubject, payload); err != nil {
			h.logger.Warn().Err(err).Str("key", event.Key.String()).Msg("failed to publish status event to nats")
		}
	}
}

func (h *Hub) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			h.logger.Error().Err(err).Msg("status event redis subscription closed")
			return
		}
		h.handleRemote([]byte(msg.Payload), "redis")
	}
}

func (h *Hub) consumeNATS(ctx context.Context) {
	sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
		h.handleRemote(msg.Data, "nats")
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats status subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain status nats subscription")
		}
	}()
}

func (h *Hub) handleRemote(payload []byte, origin string) {
	var message envelope
	if err := json.Unmarshal(payload, &message); err != nil {
		h.logger.Warn().Err(err).Str("origin", origin).Msg("invalid status event payload")
		return
	}
	if message.Node == h.nodeID {
		return
	}
	if !h.markSeen(message.ID) {
		return
	}
	h.deliver(message.Event, origin)
}

// markSeen records an event id and reports whether it was new.
func (h *Hub) markSeen(id string) bool {
	if id == "" {
		return true
	}

	h.seenMu.Lock()
	defer h.seenMu.Unlock()
	if _, ok := h.seen[id]; ok {
		return false
	}
	if len(h.seenOrder) >= seenEventsCapacity {
		delete(h.seen, h.seenOrder[0])
		h.seenOrder = h.seenOrder[1:]
	}
	h.seen[id] = struct{}{}
	h.seenOrder = append(h.seenOrder, id)
	return true
}

func (h *Hub) deliver(event StatusEvent, origin string) {
	observability.StatusEvents().WithLabelValues(origin).Inc()

	h.mu.RLock()
	listeners := append([]Listener(nil), h.listeners...)
	for ch := range h.subscribers[event.Key.GroupID] {
		select {
		case ch <- event:
		default:
		}
	}
	h.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}
