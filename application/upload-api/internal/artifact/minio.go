package artifact

import (
	"context"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/config"
	"github.com/zeromicro/go-zero/core/logx"
)

// MinioStore 对象存储，对象写入完成即整体可见
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(ctx context.Context, c config.MinioConf) (*MinioStore, error) {
	if c.Endpoint == "" || c.BucketName == "" {
		return nil, errors.New("minio 配置缺少 Endpoint 或 BucketName")
	}
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKeyID, c.SecretAccessKey, ""),
		Secure: c.UseSSL,
		Region: c.Location,
	})
	if err != nil {
		return nil, errors.Wrap(err, "创建 minio 客户端失败")
	}

	exists, err := client.BucketExists(ctx, c.BucketName)
	if err != nil {
		return nil, errors.Wrapf(err, "检查存储桶失败: %s", c.BucketName)
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.BucketName, minio.MakeBucketOptions{Region: c.Location}); err != nil {
			return nil, errors.Wrapf(err, "创建存储桶失败: %s", c.BucketName)
		}
		logx.Infof("[产物存储] 已创建存储桶: %s", c.BucketName)
	}
	return &MinioStore{client: client, bucket: c.BucketName}, nil
}

func (s *MinioStore) Commit(ctx context.Context, stagedPath, key string) (string, error) {
	info, err := s.client.FPutObject(ctx, s.bucket, key, stagedPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", errors.Wrapf(err, "上传产物失败: %s", key)
	}
	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		logx.WithContext(ctx).Errorf("[产物存储] 删除暂存文件失败, path=%s, error=%v", stagedPath, err)
	}
	logx.WithContext(ctx).Infof("[产物存储] 上传完成, bucket=%s, key=%s, size=%d, etag=%s", s.bucket, key, info.Size, info.ETag)
	return s.location(key), nil
}

func (s *MinioStore) Remove(ctx context.Context, location string) error {
	key, ok := strings.CutPrefix(location, s.location(""))
	if !ok {
		return errors.Errorf("产物不属于存储桶 %s: %s", s.bucket, location)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "删除产物失败: %s", location)
	}
	return nil
}

func (s *MinioStore) Close() error { return nil }

func (s *MinioStore) location(key string) string {
	return "minio://" + s.bucket + "/" + key
}
