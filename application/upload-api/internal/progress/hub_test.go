package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	red "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
)

type wsEvent struct {
	Type string           `json:"type"`
	Data uploadcore.Event `json:"data"`
}

func staticSnapshot(final bool) SnapshotFunc {
	return func() (any, bool, error) {
		return map[string]string{"status": "uploading"}, final, nil
	}
}

func startServer(t *testing.T, hub *Hub, snapshot SnapshotFunc) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 7, "u1", snapshot)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var snap Message
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, TypeSnapshot, snap.Type)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsEvent
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubLocalDispatch(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := startServer(t, hub, staticSnapshot(false))
	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	pub := NewLocalPublisher(hub)
	ctx := context.Background()

	// 其他租户的同名会话不会推送
	require.NoError(t, pub.Publish(ctx, uploadcore.Event{Type: uploadcore.EventChunkUploaded, UploadId: "u1", CooperativeId: 8, ChunkNumber: 9}))
	require.NoError(t, pub.Publish(ctx, uploadcore.Event{Type: uploadcore.EventChunkUploaded, UploadId: "u1", CooperativeId: 7, ChunkNumber: 1}))

	msg := readEvent(t, conn)
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, uploadcore.EventChunkUploaded, msg.Data.Type)
	assert.Equal(t, int64(1), msg.Data.ChunkNumber)

	require.NoError(t, pub.Publish(ctx, uploadcore.Event{Type: uploadcore.EventSessionCompleted, UploadId: "u1", CooperativeId: 7}))
	msg = readEvent(t, conn)
	assert.Equal(t, uploadcore.EventSessionCompleted, msg.Data.Type)

	// 终态事件后服务端关闭连接
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Online() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubFinalSnapshotCloses(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := startServer(t, hub, staticSnapshot(true))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Subscribers("u1"))
}

func TestHubEventDuringSnapshotDelivered(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()
	pub := NewLocalPublisher(hub)

	subscribed := make(chan int, 1)
	published := make(chan struct{})
	conn := startServer(t, hub, func() (any, bool, error) {
		subscribed <- hub.Subscribers("u1")
		// 读取快照期间会话完成
		go func() {
			defer close(published)
			_ = pub.Publish(context.Background(), uploadcore.Event{Type: uploadcore.EventSessionCompleted, UploadId: "u1", CooperativeId: 7})
		}()
		return map[string]string{"status": "assembling"}, false, nil
	})
	assert.Equal(t, 1, <-subscribed)

	msg := readEvent(t, conn)
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, uploadcore.EventSessionCompleted, msg.Data.Type)
	<-published

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Online() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSnapshotErrorClosesConn(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := hub.Serve(w, r, 7, "u1", func() (any, bool, error) {
			return nil, false, errors.New("session store unavailable")
		})
		assert.Error(t, err)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Online() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRedisDispatch(t *testing.T) {
	rds := redistest.CreateRedis(t)

	hub := NewHub(red.NewClient(&red.Options{Addr: rds.Addr}))
	hub.Start()
	defer hub.Stop()

	select {
	case <-hub.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("订阅未建立")
	}

	conn := startServer(t, hub, staticSnapshot(false))
	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	pub := NewRedisPublisher(rds)
	require.NoError(t, pub.Publish(context.Background(), uploadcore.Event{
		Type:          uploadcore.EventChunkUploaded,
		UploadId:      "u1",
		CooperativeId: 7,
		ChunkNumber:   3,
	}))

	msg := readEvent(t, conn)
	assert.Equal(t, int64(3), msg.Data.ChunkNumber)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "upload:events:7:abc", Channel(7, "abc"))
	assert.Equal(t, []string{"a:1", "b:2"}, splitHosts(" a:1, ,b:2"))
}
