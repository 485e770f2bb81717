package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zap.NewNop())
	go h.Run(ctx)

	r := gin.New()
	r.GET("/ws", Handler(h, NewUpgrader()))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_PublishReachesEveryClient(t *testing.T) {
	h, url := startHub(t)

	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return h.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	payload := map[string]string{"status": "success", "message": "Loaded 2 symbols"}
	require.NoError(t, h.Publish(context.Background(), "master_contract_download", payload))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "master_contract_download", msg.Event)
		assert.Equal(t, map[string]any{"status": "success", "message": "Loaded 2 symbols"}, msg.Data)
	}
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	h, url := startHub(t)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishAfterStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// バッファが埋まるまでは受け付けるので、溢れた時点で停止が見える
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		err = h.Publish(context.Background(), "ping", nil)
	}
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestHub_PublishRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	h := NewHub(zap.NewNop())
	err := h.Publish(context.Background(), "bad", make(chan int))
	assert.ErrorContains(t, err, `failed to marshal event "bad"`)
}

func TestRedisPublisher_Publish(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, DefaultChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisPublisher(rdb, "").Publish(ctx, "master_contract_download", map[string]string{"status": "success"}))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"event":"master_contract_download","data":{"status":"success"}}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestRelay_ForwardsRedisEventsToClients(t *testing.T) {
	h, url := startHub(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, Relay(ctx, rdb, "", h, zap.NewNop()))

	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	// 不正なJSONは捨てられ、次の正しいイベントだけが届く
	require.NoError(t, rdb.Publish(ctx, DefaultChannel, "not json").Err())
	require.NoError(t, NewRedisPublisher(rdb, "").Publish(ctx, "master_contract_download", "done"))

	msg := readMessage(t, conn)
	assert.Equal(t, "master_contract_download", msg.Event)
	assert.Equal(t, "done", msg.Data)
}
