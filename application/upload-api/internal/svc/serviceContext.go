package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/artifact"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/config"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/crontab"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/model"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/progress"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/yanshicheng/coop-nova/common/middleware"
	"github.com/yanshicheng/coop-nova/common/verify"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/rest"
)

const (
	StoreMysql     = "mysql"
	StoreMemory    = "memory"
	GovernorRedis  = "redis"
	GovernorMemory = "memory"
)

type ServiceContext struct {
	Config            config.Config
	Cache             *redis.Redis
	Validator         *verify.ValidatorInstance
	JWTAuthMiddleware rest.Middleware
	Artifacts         artifact.Store
	Upload            *uploadcore.Service
	Hub               *progress.Hub
	Scheduler         *crontab.Scheduler
}

func NewServiceContext(c config.Config) *ServiceContext {
	validator, err := verify.InitValidator(verify.LocaleZH)
	if err != nil {
		panic(err)
	}

	// Redis 未配置时只能使用内存模式
	var cacheClient *redis.Redis
	if c.Cache.Host != "" {
		cacheClient = redis.MustNewRedis(c.Cache)
	}

	store, err := newStore(c)
	if err != nil {
		panic(err)
	}

	artifacts, err := artifact.NewStore(context.Background(), c.Artifact)
	if err != nil {
		panic(fmt.Sprintf("初始化产物存储失败: %v", err))
	}

	// 有 Redis 时事件经 pub/sub 广播，所有副本的 Hub 都能收到
	var (
		hub       *progress.Hub
		publisher uploadcore.EventPublisher
	)
	if cacheClient != nil {
		hub = progress.NewHub(progress.NewSubscribeClient(c.Cache))
		publisher = progress.NewRedisPublisher(cacheClient)
	} else {
		hub = progress.NewHub(nil)
		publisher = progress.NewLocalPublisher(hub)
	}

	options := []uploadcore.Option{uploadcore.WithPublisher(publisher)}
	switch c.Upload.Governor {
	case GovernorRedis:
		if cacheClient == nil {
			panic("Upload.Governor=redis 需要配置 Cache")
		}
		options = append(options, uploadcore.WithGovernor(uploadcore.NewRedisGovernor(cacheClient)))
	default:
		options = append(options, uploadcore.WithGovernor(uploadcore.NewMemoryGovernor()))
	}

	uploadService, err := uploadcore.NewService(uploadOptions(c), store, artifacts, options...)
	if err != nil {
		panic(fmt.Sprintf("初始化上传服务失败: %v", err))
	}

	scheduler := crontab.NewScheduler(crontab.SchedulerConfig{
		Redis:                 cacheClient,
		EnableDistributedLock: c.Crontab.EnableDistributedLock,
	})
	cleanupJob := crontab.NewSessionCleanupJob(uploadService, c.Crontab.CleanupSpec,
		time.Duration(c.Crontab.CleanupTimeoutSeconds)*time.Second)
	if err := scheduler.AddJob(cleanupJob); err != nil {
		panic(fmt.Sprintf("注册会话清理任务失败: %v", err))
	}

	return &ServiceContext{
		Config:            c,
		Cache:             cacheClient,
		Validator:         validator,
		JWTAuthMiddleware: middleware.NewJWTAuthMiddleware(c.Auth.AccessSecret).Handle,
		Artifacts:         artifacts,
		Upload:            uploadService,
		Hub:               hub,
		Scheduler:         scheduler,
	}
}

func newStore(c config.Config) (uploadcore.Store, error) {
	switch c.Upload.Store {
	case StoreMemory:
		logx.Info("[上传会话] 使用内存存储，仅适用于单机调试")
		return uploadcore.NewMemoryStore(), nil
	case StoreMysql, "":
	default:
		return nil, fmt.Errorf("不支持的会话存储: %s", c.Upload.Store)
	}

	// 会话时间字段依赖 parseTime
	dsn, err := mysql.ParseDSN(c.Mysql.DataSource)
	if err != nil {
		return nil, fmt.Errorf("解析数据库连接串失败: %w", err)
	}
	dsn.ParseTime = true
	if dsn.Loc == nil {
		dsn.Loc = time.Local
	}

	sqlConn := sqlx.NewMysql(dsn.FormatDSN())
	rawDB, err := sqlConn.RawDB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	rawDB.SetMaxOpenConns(c.Mysql.MaxOpenConns)
	rawDB.SetMaxIdleConns(c.Mysql.MaxIdleConns)
	rawDB.SetConnMaxLifetime(time.Duration(c.Mysql.ConnMaxLifetime) * time.Second)

	return uploadcore.NewMysqlStore(
		model.NewUploadSessionsModel(sqlConn, c.DBCache),
		model.NewUploadChunksModel(sqlConn),
	), nil
}

func uploadOptions(c config.Config) uploadcore.Options {
	opts := uploadcore.DefaultOptions()
	opts.DataDir = c.Upload.DataDir
	opts.MaxFileSize = c.Upload.MaxFileSize
	opts.MinChunkSize = c.Upload.MinChunkSize
	opts.MaxChunkSize = c.Upload.MaxChunkSize
	opts.DefaultChunkSize = c.Upload.DefaultChunkSize
	opts.MaxTotalChunks = c.Upload.MaxTotalChunks
	opts.DefaultMaxRetries = c.Upload.DefaultMaxRetries
	opts.DefaultConcurrentChunks = c.Upload.DefaultConcurrentChunks
	opts.SessionExpiration = time.Duration(c.Upload.SessionExpirationHours) * time.Hour
	opts.AssemblyWorkers = c.Upload.AssemblyWorkers
	opts.CleanupBatchSize = c.Crontab.CleanupBatchSize
	return opts
}

// Start 启动后台组件
func (s *ServiceContext) Start() {
	s.Hub.Start()
	if s.Config.Crontab.Enable {
		s.Scheduler.Start()
	}
}

// Stop 依次停止调度、等待合并任务、关闭推送与存储
func (s *ServiceContext) Stop() {
	s.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Upload.Close(ctx); err != nil {
		logx.Errorf("[分片组装] 等待合并任务结束超时: %v", err)
	}

	s.Hub.Stop()
	if err := s.Artifacts.Close(); err != nil {
		logx.Errorf("[产物存储] 关闭失败: %v", err)
	}
}
