package chat

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"chat-gateway/internal/hashing"
	"chat-gateway/internal/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer      = 64
	broadcastBuffer = 256
)

// Relay forwards locally published envelopes to other server instances.
// It must not block.
type Relay interface {
	Relay(env *types.Envelope)
}

// Subscription receives the payloads published on one channel, in publish
// order. Send is closed when the subscription ends.
type Subscription struct {
	ID      uuid.UUID
	Channel string
	Send    chan []byte

	shard *shard
	once  sync.Once
}

type shard struct {
	name string
	log  *logrus.Entry

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan *types.Envelope
	quit       chan struct{}
}

// Hub fans envelopes out to subscribers. Channels are spread over shards
// by a consistent hash; each shard runs one loop so a channel's messages
// are delivered in publish order.
type Hub struct {
	ServerID string

	shards map[string]*shard
	ring   *hashing.Ring
	relay  Relay
	quit   chan struct{}
	once   sync.Once
}

func NewHub(serverID string, shards int) *Hub {
	if shards <= 0 {
		shards = 1
	}
	if serverID == "" {
		serverID = uuid.NewString()
	}
	log := logrus.WithField("component", "hub")
	log.WithFields(logrus.Fields{"server_id": serverID, "shards": shards}).Info("[HUB] Initializing new Hub instance...")

	h := &Hub{
		ServerID: serverID,
		shards:   make(map[string]*shard, shards),
		ring:     hashing.NewRing(hashing.DefaultReplicas),
		quit:     make(chan struct{}),
	}
	for i := 0; i < shards; i++ {
		name := "shard-" + strconv.Itoa(i)
		h.shards[name] = &shard{
			name:       name,
			log:        log.WithField("shard", name),
			subs:       make(map[string]map[*Subscription]struct{}),
			register:   make(chan *Subscription),
			unregister: make(chan *Subscription),
			broadcast:  make(chan *types.Envelope, broadcastBuffer),
			quit:       h.quit,
		}
		h.ring.Add(name)
	}
	return h
}

// SetRelay installs the cross-instance relay. Call before Run.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

func (h *Hub) shardFor(channel string) *shard {
	return h.shards[h.ring.Get(channel)]
}

// Run starts every shard loop and blocks until Stop.
func (h *Hub) Run() {
	var wg sync.WaitGroup
	for _, s := range h.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			s.run()
		}(s)
	}
	wg.Wait()
}

func (h *Hub) Stop() {
	h.once.Do(func() { close(h.quit) })
}

// Subscribe registers a subscription on channel. It returns once the shard
// has registered it, so anything published afterwards reaches it.
func (h *Hub) Subscribe(channel string) *Subscription {
	s := h.shardFor(channel)
	sub := &Subscription{
		ID:      uuid.New(),
		Channel: channel,
		Send:    make(chan []byte, sendBuffer),
		shard:   s,
	}
	select {
	case s.register <- sub:
	case <-h.quit:
		sub.close()
	}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	select {
	case sub.shard.unregister <- sub:
	case <-h.quit:
	}
}

// Publish encodes payload and delivers it to channel's subscribers on this
// instance, then hands it to the relay. It never blocks: when the shard is
// saturated the envelope is dropped and logged.
func (h *Hub) Publish(channel string, kind types.MessageType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logrus.WithField("channel", channel).WithError(err).Error("[HUB] Failed to encode payload")
		return
	}
	env := &types.Envelope{
		ID:             uuid.New(),
		Channel:        channel,
		Type:           kind,
		Payload:        raw,
		Timestamp:      time.Now().UTC(),
		SenderServerID: h.ServerID,
	}
	h.Deliver(env)
	if h.relay != nil {
		h.relay.Relay(env)
	}
}

// Deliver hands an envelope to the owning shard without relaying it.
func (h *Hub) Deliver(env *types.Envelope) {
	s := h.shardFor(env.Channel)
	select {
	case s.broadcast <- env:
	default:
		s.log.WithField("channel", env.Channel).Warn("[HUB] CRITICAL: Broadcast channel full, dropping message")
	}
}

// Stats reports subscriber counts per channel.
func (h *Hub) Stats() any {
	channels := make(map[string]int)
	total := 0
	for _, s := range h.shards {
		s.mu.RLock()
		for ch, subs := range s.subs {
			channels[ch] += len(subs)
			total += len(subs)
		}
		s.mu.RUnlock()
	}
	return map[string]any{
		"serverId":    h.ServerID,
		"shards":      len(h.shards),
		"subscribers": total,
		"channels":    channels,
	}
}

func (sub *Subscription) close() {
	sub.once.Do(func() { close(sub.Send) })
}

func (s *shard) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.subs[sub.Channel]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(s.subs, sub.Channel)
	}
	sub.close()
}

func (s *shard) run() {
	s.log.Debug("[HUB] Shard loop started")
	for {
		select {
		case <-s.quit:
			s.mu.Lock()
			for ch, subs := range s.subs {
				for sub := range subs {
					sub.close()
				}
				delete(s.subs, ch)
			}
			s.mu.Unlock()
			s.log.Debug("[HUB] Shard loop stopped")
			return

		case sub := <-s.register:
			s.mu.Lock()
			if _, ok := s.subs[sub.Channel]; !ok {
				s.subs[sub.Channel] = make(map[*Subscription]struct{})
			}
			s.subs[sub.Channel][sub] = struct{}{}
			s.mu.Unlock()

		case sub := <-s.unregister:
			s.remove(sub)

		case env := <-s.broadcast:
			s.mu.RLock()
			var slow []*Subscription
			for sub := range s.subs[env.Channel] {
				select {
				case sub.Send <- env.Payload:
				default:
					slow = append(slow, sub)
				}
			}
			s.mu.RUnlock()
			for _, sub := range slow {
				s.log.WithFields(logrus.Fields{"channel": env.Channel, "subscription": sub.ID}).Warn("[HUB] Subscriber buffer full. Evicting slow consumer.")
				s.remove(sub)
			}
		}
	}
}
