package config

import (
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/rest"
)

type Config struct {
	rest.RestConf
	Auth     AuthConf
	Mysql    MysqlConf       `json:",optional"`
	DBCache  cache.CacheConf `json:",optional"`
	Cache    redis.RedisConf `json:",optional"`
	Upload   UploadConf
	Artifact ArtifactConf
	Crontab  CrontabConf
}

type AuthConf struct {
	AccessSecret string
	AccessExpire int64 `json:",default=86400"`
}

type MysqlConf struct {
	DataSource      string `json:",optional"`
	MaxOpenConns    int    `json:",default=50"`
	MaxIdleConns    int    `json:",default=10"`
	ConnMaxLifetime int64  `json:",default=3600"` // 秒
}

// UploadConf 分片上传核心配置
type UploadConf struct {
	// Store 会话存储，mysql 用于生产，memory 用于单机调试
	Store string `json:",default=mysql,options=mysql|memory"`
	// Governor 并发控制，redis 可跨副本共享
	Governor string `json:",default=redis,options=redis|memory"`
	// DataDir 分片临时文件与合并中间文件目录
	DataDir string `json:",default=./data/upload"`

	MaxFileSize      int64 `json:",default=10737418240"` // 10GB
	MinChunkSize     int64 `json:",default=1024"`
	MaxChunkSize     int64 `json:",default=10485760"` // 10MB
	DefaultChunkSize int64 `json:",default=1048576"`  // 1MB
	MaxTotalChunks   int64 `json:",default=100000"`

	DefaultMaxRetries       int64 `json:",default=3"`
	DefaultConcurrentChunks int64 `json:",default=3"`
	SessionExpirationHours  int64 `json:",default=24"`

	AssemblyWorkers int64 `json:",default=4"`
}

// ArtifactConf 最终文件存储
type ArtifactConf struct {
	Driver string `json:",default=local,options=local|minio|blob"`
	// LocalDir local 驱动的根目录，需要与 Upload.DataDir 位于同一文件系统
	LocalDir string `json:",default=./data/artifacts"`
	// BucketURL blob 驱动地址，例如 file:///data/artifacts、s3://bucket?region=cn-north-1
	BucketURL string    `json:",optional"`
	Minio     MinioConf `json:",optional"`
}

type MinioConf struct {
	Endpoint        string `json:",optional"`
	AccessKeyID     string `json:",optional"`
	SecretAccessKey string `json:",optional"`
	UseSSL          bool   `json:",optional"`
	BucketName      string `json:",optional"`
	Location        string `json:",default=us-east-1"`
}

type CrontabConf struct {
	Enable                bool   `json:",default=true"`
	CleanupSpec           string `json:",default=@every 5m"`
	CleanupTimeoutSeconds int64  `json:",default=300"`
	CleanupBatchSize      int64  `json:",default=200"`
	EnableDistributedLock bool   `json:",default=true"`
}
