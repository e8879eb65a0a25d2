package code

import (
	"net/http"

	"github.com/yanshicheng/coop-nova/common/handler/errorx"
)

// 请求与会话规划 2100xx
var (
	ValidationError  = errorx.NewWithStatus(http.StatusBadRequest, 210001, "请求参数错误")
	FileTooLarge     = errorx.NewWithStatus(http.StatusBadRequest, 210002, "文件大小超过限制")
	FileEmpty        = errorx.NewWithStatus(http.StatusBadRequest, 210003, "文件大小必须大于0")
	InvalidChunkSize = errorx.NewWithStatus(http.StatusBadRequest, 210004, "分片大小无效")
)

// 会话状态 2101xx
var (
	SessionNotFound   = errorx.NewWithStatus(http.StatusNotFound, 210101, "上传会话不存在")
	SessionExpired    = errorx.NewWithStatus(http.StatusGone, 210102, "上传会话已过期")
	SessionCancelled  = errorx.NewWithStatus(http.StatusGone, 210103, "上传会话已取消")
	SessionFinalized  = errorx.NewWithStatus(http.StatusGone, 210104, "上传会话已结束")
	SessionAssembling = errorx.NewWithStatus(http.StatusConflict, 210105, "上传会话正在合并")
)

// 分片 2102xx
var (
	ChunkSizeMismatch      = errorx.NewWithStatus(http.StatusBadRequest, 210201, "分片大小不匹配")
	ChunkIntegrityMismatch = errorx.NewWithStatus(http.StatusBadRequest, 210202, "分片校验失败")
	ChunkRetryExhausted    = errorx.NewWithStatus(http.StatusBadRequest, 210203, "分片重试次数已用尽")
)

// 并发控制 2103xx
var (
	Busy = errorx.NewWithStatus(http.StatusConflict, 210301, "并发上传分片数已达上限，请稍后重试")
)

// 合并与存储 2104xx
var (
	AssemblyIntegrityMismatch = errorx.NewWithStatus(http.StatusUnprocessableEntity, 210401, "文件完整性校验失败")
	StorageIOError            = errorx.NewWithStatus(http.StatusInternalServerError, 210402, "存储读写失败")
)

// 权限 2105xx
var (
	Forbidden = errorx.NewWithStatus(http.StatusForbidden, 210501, "无权限访问")
)

// 会话上记录的错误名，与错误码一一对应
const (
	ErrNameAssemblyIntegrityMismatch = "AssemblyIntegrityMismatch"
	ErrNameStorageIOError            = "StorageIOError"
)
