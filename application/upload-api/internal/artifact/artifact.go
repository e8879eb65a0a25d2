package artifact

import (
	"context"
	"fmt"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/config"
)

const (
	DriverLocal = "local"
	DriverMinio = "minio"
	DriverBlob  = "blob"

	contentType = "application/octet-stream"
)

// Store 最终产物存储。Commit 成功后暂存文件由驱动负责移走或删除
type Store interface {
	Commit(ctx context.Context, stagedPath, key string) (string, error)
	Remove(ctx context.Context, location string) error
	Close() error
}

// NewStore 按配置创建存储驱动
func NewStore(ctx context.Context, c config.ArtifactConf) (Store, error) {
	switch c.Driver {
	case DriverLocal, "":
		return NewLocalStore(c.LocalDir)
	case DriverMinio:
		return NewMinioStore(ctx, c.Minio)
	case DriverBlob:
		return NewBlobStore(ctx, c.BucketURL)
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %s", c.Driver)
	}
}
