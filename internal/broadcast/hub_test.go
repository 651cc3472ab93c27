package broadcast

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	received     [][]byte
	sendErr      error
	panicOnSend  bool
	handshakeErr error
	handshaken   bool
}

func (f *fakeSubscriber) Send(message []byte) error {
	if f.panicOnSend {
		panic("connection exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, message)
	return nil
}

func (f *fakeSubscriber) Handshake() error {
	f.handshaken = true
	return f.handshakeErr
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func TestHub_BroadcastContinuesPastFailingSubscriber(t *testing.T) {
	hub := NewHub(arbor.NewNoOpLogger())

	first := &fakeSubscriber{}
	second := &fakeSubscriber{sendErr: errors.New("broken pipe")}
	third := &fakeSubscriber{}

	for _, sub := range []*fakeSubscriber{first, second, third} {
		_, err := hub.Connect(sub)
		require.NoError(t, err)
	}

	assert.NotPanics(t, func() {
		hub.Broadcast(models.AnalysisStartEvent{Filename: "x.json"})
	})

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 0, second.count())
	assert.Equal(t, 1, third.count())

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(first.received[0], &msg))
	assert.Equal(t, "analysis_start", msg["type"])

	// Failed subscribers are not pruned
	assert.Equal(t, 3, hub.Count())
}

func TestHub_BroadcastSurvivesPanickingSubscriber(t *testing.T) {
	hub := NewHub(arbor.NewNoOpLogger())

	first := &fakeSubscriber{}
	second := &fakeSubscriber{panicOnSend: true}
	third := &fakeSubscriber{}
	for _, sub := range []*fakeSubscriber{first, second, third} {
		_, err := hub.Connect(sub)
		require.NoError(t, err)
	}

	assert.NotPanics(t, func() {
		hub.Broadcast(models.AnalysisCompleteEvent{Count: 0})
	})
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, third.count())
}

func TestHub_HandshakeBeforeRegistration(t *testing.T) {
	hub := NewHub(arbor.NewNoOpLogger())

	ok := &fakeSubscriber{}
	sub, err := hub.Connect(ok)
	require.NoError(t, err)
	assert.True(t, ok.handshaken)
	assert.NotEmpty(t, sub.ID)

	bad := &fakeSubscriber{handshakeErr: errors.New("refused")}
	_, err = hub.Connect(bad)
	assert.Error(t, err)
	assert.Equal(t, 1, hub.Count())
}

func TestHub_Disconnect(t *testing.T) {
	hub := NewHub(arbor.NewNoOpLogger())

	sub := &fakeSubscriber{}
	subscription, err := hub.Connect(sub)
	require.NoError(t, err)

	assert.True(t, hub.Disconnect(subscription))
	assert.False(t, hub.Disconnect(subscription))
	assert.False(t, hub.Disconnect(nil))

	hub.Broadcast(models.AnalysisStartEvent{Filename: "x.json"})
	assert.Equal(t, 0, sub.count())
}

func TestHub_ConcurrentConnectBroadcastDisconnect(t *testing.T) {
	hub := NewHub(arbor.NewNoOpLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subscription, err := hub.Connect(&fakeSubscriber{})
			if err != nil {
				return
			}
			hub.Broadcast(models.AnalysisStartEvent{Filename: "c.json"})
			hub.Disconnect(subscription)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Count())
}

func TestWebSocketSubscriber_ReceivesBroadcast(t *testing.T) {
	hub := NewHub(arbor.NewNoOpLogger())
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	connected := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := NewWebSocketSubscriber(conn, time.Second)
		subscription, err := hub.Connect(sub)
		if err != nil {
			conn.Close()
			return
		}
		close(connected)
		sub.DiscardInbound()
		hub.Disconnect(subscription)
		sub.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber never registered")
	}

	hub.Broadcast(models.AnalysisStartEvent{Filename: "remote.json"})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"analysis_start","filename":"remote.json"}`, string(data))
}

func TestWebSocketSubscriber_StalledClientDoesNotBlockSend(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	subs := make(chan *WebSocketSubscriber, 1)
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := NewWebSocketSubscriber(conn, 10*time.Second)
		subs <- sub
		<-release
		sub.Close()
	}))
	defer server.Close()
	defer close(release)

	// The client never reads, so the socket buffers fill up
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	var sub *WebSocketSubscriber
	select {
	case sub = <-subs:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber never created")
	}

	message := make([]byte, 1024*1024)
	started := time.Now()
	var queueFull int
	for i := 0; i < 200; i++ {
		if err := sub.Send(message); errors.Is(err, ErrSendQueueFull) {
			queueFull++
		}
	}

	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Positive(t, queueFull)
}

func TestWebSocketSubscriber_SendAfterClose(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	subs := make(chan *WebSocketSubscriber, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		subs <- NewWebSocketSubscriber(conn, time.Second)
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	sub := <-subs
	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	assert.ErrorIs(t, sub.Send([]byte(`{}`)), ErrSubscriberClosed)
}
