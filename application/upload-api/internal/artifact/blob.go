package artifact

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
	_ "gocloud.dev/blob/s3blob"   // s3:// URLs
	"gocloud.dev/gcerrors"
)

// BlobStore 基于 gocloud blob 的通用存储，支持 file、mem、s3 地址
type BlobStore struct {
	bucket *blob.Bucket
}

func NewBlobStore(ctx context.Context, bucketURL string) (*BlobStore, error) {
	if bucketURL == "" {
		return nil, errors.New("blob 存储缺少 BucketURL")
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "打开存储桶失败: %s", bucketURL)
	}
	return &BlobStore{bucket: bucket}, nil
}

func (s *BlobStore) Commit(ctx context.Context, stagedPath, key string) (string, error) {
	f, err := os.Open(stagedPath)
	if err != nil {
		return "", errors.Wrap(err, "打开暂存文件失败")
	}
	defer f.Close()

	// 写入失败时取消 ctx，驱动会放弃本次写入，不留下半个对象
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", errors.Wrapf(err, "创建写入器失败: %s", key)
	}
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		w.Close()
		return "", errors.Wrapf(err, "写入产物失败: %s", key)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "提交产物失败: %s", key)
	}

	f.Close()
	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		return key, errors.Wrap(err, "删除暂存文件失败")
	}
	return key, nil
}

func (s *BlobStore) Remove(ctx context.Context, location string) error {
	if err := s.bucket.Delete(ctx, location); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return errors.Wrapf(err, "删除产物失败: %s", location)
	}
	return nil
}

// Exists 产物是否存在
func (s *BlobStore) Exists(ctx context.Context, location string) (bool, error) {
	return s.bucket.Exists(ctx, location)
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
