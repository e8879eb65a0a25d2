package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const (
	ChannelPrefix  = "upload:events:"
	channelPattern = ChannelPrefix + "*"
)

// Channel 会话事件频道 upload:events:{cooperativeId}:{uploadId}
func Channel(cooperativeId uint64, uploadId string) string {
	return fmt.Sprintf("%s%d:%s", ChannelPrefix, cooperativeId, uploadId)
}

// RedisPublisher 通过 Redis 频道广播事件，所有副本的 Hub 都能收到
type RedisPublisher struct {
	rds *redis.Redis
}

func NewRedisPublisher(rds *redis.Redis) *RedisPublisher {
	return &RedisPublisher{rds: rds}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt uploadcore.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if _, err := p.rds.PublishCtx(ctx, Channel(evt.CooperativeId, evt.UploadId), string(data)); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// LocalPublisher 单实例部署时直接分发给本地 Hub
type LocalPublisher struct {
	hub *Hub
}

func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(_ context.Context, evt uploadcore.Event) error {
	p.hub.Dispatch(evt)
	return nil
}
