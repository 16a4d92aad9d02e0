package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat-gateway/internal/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, shards int) *Hub {
	t.Helper()
	h := NewHub("test-server", shards)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	t.Cleanup(func() {
		h.Stop()
		<-done
	})
	return h
}

func recv(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case msg, ok := <-sub.Send:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

type payload struct {
	N int `json:"n"`
}

func TestPublishReachesOnlyChannelSubscribers(t *testing.T) {
	h := startHub(t, 4)
	a := h.Subscribe("room:1")
	b := h.Subscribe("room:1")
	other := h.Subscribe("room:2")

	h.Publish("room:1", types.TypeMessage, payload{N: 7})

	for _, sub := range []*Subscription{a, b} {
		var got payload
		require.NoError(t, json.Unmarshal(recv(t, sub), &got))
		assert.Equal(t, 7, got.N)
	}
	select {
	case <-other.Send:
		t.Fatal("room:2 subscriber got a room:1 message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishPreservesOrderPerChannel(t *testing.T) {
	h := startHub(t, 4)
	subs := map[string]*Subscription{}
	for i := 0; i < 8; i++ {
		ch := fmt.Sprintf("room:%d", i)
		subs[ch] = h.Subscribe(ch)
	}

	for n := 0; n < 20; n++ {
		for ch := range subs {
			h.Publish(ch, types.TypeMessage, payload{N: n})
		}
	}

	for ch, sub := range subs {
		for n := 0; n < 20; n++ {
			var got payload
			require.NoError(t, json.Unmarshal(recv(t, sub), &got))
			assert.Equal(t, n, got.N, ch)
		}
	}
}

func TestSlowConsumerIsEvictedWithoutBlocking(t *testing.T) {
	h := startHub(t, 1)
	slow := h.Subscribe("world")
	fast := h.Subscribe("world")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range fast.Send {
		}
	}()

	done := make(chan struct{})
	go func() {
		for n := 0; n < sendBuffer*2; n++ {
			h.Publish("world", types.TypeMessage, payload{N: n})
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	deadline := time.After(time.Second)
drain:
	for {
		select {
		case _, ok := <-slow.Send:
			if !ok {
				break drain
			}
		case <-deadline:
			t.Fatal("slow subscriber was not evicted")
		}
	}

	h.Unsubscribe(fast)
	wg.Wait()
}

func TestUnsubscribeClosesSend(t *testing.T) {
	h := startHub(t, 2)
	sub := h.Subscribe("room:9")
	h.Unsubscribe(sub)

	_, ok := <-sub.Send
	assert.False(t, ok)

	stats := h.Stats().(map[string]any)
	assert.Equal(t, 0, stats["subscribers"])
}

func TestStatsCountsSubscribers(t *testing.T) {
	h := startHub(t, 2)
	h.Subscribe("room:1")
	h.Subscribe("room:1")
	h.Subscribe("world")

	stats := h.Stats().(map[string]any)
	assert.Equal(t, 3, stats["subscribers"])
	channels := stats["channels"].(map[string]int)
	assert.Equal(t, 2, channels["room:1"])
	assert.Equal(t, "test-server", stats["serverId"])
}

type captureRelay struct {
	mu  sync.Mutex
	got []*types.Envelope
}

func (c *captureRelay) Relay(env *types.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, env)
}

func TestRelaySeesLocalPublishesOnly(t *testing.T) {
	h := NewHub("local", 1)
	relay := &captureRelay{}
	h.SetRelay(relay)
	done := make(chan struct{})
	go func() { h.Run(); close(done) }()
	defer func() { h.Stop(); <-done }()

	sub := h.Subscribe("world")
	h.Publish("world", types.TypeMessage, payload{N: 1})
	h.Deliver(&types.Envelope{Channel: "world", Payload: []byte(`{"n":2}`), FromRedis: true, SenderServerID: "remote"})

	var first, second payload
	require.NoError(t, json.Unmarshal(recv(t, sub), &first))
	require.NoError(t, json.Unmarshal(recv(t, sub), &second))
	assert.Equal(t, 1, first.N)
	assert.Equal(t, 2, second.N)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.got, 1)
	assert.Equal(t, "local", relay.got[0].SenderServerID)
}

func TestBridgeIgnoresOwnEnvelopes(t *testing.T) {
	h := startHub(t, 1)
	b := &RedisBridge{hub: h, out: make(chan *types.Envelope, 1), log: logrus.WithField("component", "test")}
	sub := h.Subscribe("world")

	own, _ := json.Marshal(types.Envelope{Channel: "world", Payload: []byte(`{"n":1}`), SenderServerID: h.ServerID})
	remote, _ := json.Marshal(types.Envelope{Channel: "world", Payload: []byte(`{"n":2}`), SenderServerID: "elsewhere"})
	b.handle(own)
	b.handle(remote)

	var got payload
	require.NoError(t, json.Unmarshal(recv(t, sub), &got))
	assert.Equal(t, 2, got.N)

	// Remote envelopes are not relayed back out.
	b.Relay(&types.Envelope{FromRedis: true})
	assert.Len(t, b.out, 0)
}
