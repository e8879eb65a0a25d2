package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	red "github.com/redis/go-redis/v9"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/threading"
)

// Hub 按 uploadId 维护进度订阅连接，事件来自 Redis 频道或本地发布
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Conn]struct{}

	rdb    red.UniversalClient // 为空时只做本地分发
	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	logger logx.Logger
}

func NewHub(rdb red.UniversalClient) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients: make(map[string]map[*Conn]struct{}),
		rdb:     rdb,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		logger:  logx.WithContext(ctx),
	}
}

// NewSubscribeClient 按 go-zero 配置创建原生客户端，仅用于订阅
func NewSubscribeClient(c redis.RedisConf) red.UniversalClient {
	if c.Type == redis.ClusterType {
		return red.NewClusterClient(&red.ClusterOptions{
			Addrs:    splitHosts(c.Host),
			Password: c.Pass,
			Username: c.User,
		})
	}
	return red.NewClient(&red.Options{
		Addr:     c.Host,
		Password: c.Pass,
		Username: c.User,
	})
}

func splitHosts(host string) []string {
	var hosts []string
	for _, h := range strings.Split(host, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func (h *Hub) Start() {
	if h.rdb == nil {
		close(h.ready)
		h.logger.Info("[进度推送] Hub 启动, 本地模式")
		return
	}
	h.logger.Info("[进度推送] Hub 启动, 订阅 Redis 频道")
	threading.GoSafe(h.subscribe)
}

// Ready 订阅建立后关闭
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Conn]struct{})
	h.mu.Unlock()

	for _, conns := range all {
		for c := range conns {
			c.Close()
		}
	}
	if h.rdb != nil {
		h.rdb.Close()
	}
	h.logger.Info("[进度推送] Hub 已停止")
}

func (h *Hub) subscribe() {
	pubsub := h.rdb.PSubscribe(h.ctx, channelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(h.ctx); err != nil {
		h.logger.Errorf("[进度推送] 订阅失败: %v", err)
		return
	}
	close(h.ready)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleMessage(msg.Channel, msg.Payload)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) handleMessage(channel, payload string) {
	var evt uploadcore.Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		h.logger.Errorf("[进度推送] 解析事件失败, channel=%s, error=%v", channel, err)
		return
	}
	if channel != Channel(evt.CooperativeId, evt.UploadId) {
		h.logger.Errorf("[进度推送] 频道与事件不匹配, channel=%s, uploadId=%s", channel, evt.UploadId)
		return
	}
	h.Dispatch(evt)
}

// Dispatch 推送给订阅该会话的连接，终态事件推送后关闭连接
func (h *Hub) Dispatch(evt uploadcore.Event) {
	h.mu.RLock()
	var targets []*Conn
	for c := range h.clients[evt.UploadId] {
		if c.cooperativeId == evt.CooperativeId {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := Message{Type: TypeEvent, Data: evt}
	for _, c := range targets {
		if err := c.WriteJSON(msg); err != nil || evt.IsFinal() {
			h.unregister(c)
			c.Close()
		}
	}
}

// SnapshotFunc 读取会话当前快照，final 为 true 表示会话已结束
type SnapshotFunc func() (snapshot any, final bool, err error)

// Serve 升级连接并推送首帧快照，阻塞到连接关闭；会话已结束时发送快照后立即关闭
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, cooperativeId uint64, uploadId string, snapshot SnapshotFunc) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := newConn(ws, cooperativeId, uploadId)
	defer c.Close()

	// 先登记再读取快照，登记后到达的事件排在快照之后推送
	h.register(c)
	defer h.unregister(c)

	final, err := c.writeSnapshot(snapshot)
	if err != nil || final {
		return err
	}

	threading.GoSafe(c.pingLoop)
	c.readLoop()
	return nil
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.uploadId]
	if !ok {
		conns = make(map[*Conn]struct{})
		h.clients[c.uploadId] = conns
	}
	conns[c] = struct{}{}
	h.logger.Infof("[进度推送] 订阅, uploadId=%s, cooperativeId=%d, 当前连接数=%d", c.uploadId, c.cooperativeId, len(conns))
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.uploadId]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.uploadId)
	}
}

// Subscribers 会话当前订阅数
func (h *Hub) Subscribers(uploadId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[uploadId])
}

// Online 全部订阅连接数
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

