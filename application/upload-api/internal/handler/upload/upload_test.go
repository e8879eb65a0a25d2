package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/artifact"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/config"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/progress"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/yanshicheng/coop-nova/common/handler/errorx"
	"github.com/yanshicheng/coop-nova/common/handler/okx"
	"github.com/yanshicheng/coop-nova/common/vars"
	"github.com/yanshicheng/coop-nova/common/verify"
	"github.com/zeromicro/go-zero/rest/httpx"
	"github.com/zeromicro/go-zero/rest/pathvar"
)

const testCoop uint64 = 7

type envelope struct {
	Code    int32           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func TestMain(m *testing.M) {
	httpx.SetErrorHandler(errorx.ErrHandler)
	httpx.SetOkHandler(okx.OkHandler)
	m.Run()
}

func newTestServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	validator, err := verify.InitValidator(verify.LocaleZH)
	require.NoError(t, err)

	root := t.TempDir()
	local, err := artifact.NewLocalStore(filepath.Join(root, "artifacts"))
	require.NoError(t, err)

	hub := progress.NewHub(nil)
	hub.Start()
	t.Cleanup(hub.Stop)

	opts := uploadcore.DefaultOptions()
	opts.DataDir = filepath.Join(root, "chunks")
	service, err := uploadcore.NewService(opts, uploadcore.NewMemoryStore(), local,
		uploadcore.WithPublisher(progress.NewLocalPublisher(hub)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close(context.Background()) })

	var c config.Config
	c.Upload.MaxChunkSize = opts.MaxChunkSize
	return &svc.ServiceContext{
		Config:    c,
		Validator: validator,
		Artifacts: local,
		Upload:    service,
		Hub:       hub,
	}
}

func withCaller(r *http.Request, pathVars map[string]string, roles ...string) *http.Request {
	if pathVars != nil {
		r = pathvar.WithVars(r, pathVars)
	}
	return r.WithContext(ctxdata.WithIdentity(r.Context(), ctxdata.Identity{
		UserId:        1,
		UserName:      "alice",
		CooperativeId: testCoop,
		Roles:         roles,
	}))
}

func serve(t *testing.T, h http.HandlerFunc, r *http.Request) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, r)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func createSession(t *testing.T, svcCtx *svc.ServiceContext, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/upload/v1/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(t, CreateSessionHandler(svcCtx), withCaller(req, nil))
}

func putChunk(t *testing.T, svcCtx *svc.ServiceContext, uploadId string, n int64, data []byte, hash string) (int, envelope) {
	t.Helper()
	num := strconv.FormatInt(n, 10)
	req := httptest.NewRequest(http.MethodPut, "/upload/v1/sessions/"+uploadId+"/chunks/"+num, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/octet-stream")
	if hash != "" {
		req.Header.Set("X-Chunk-Hash", hash)
	}
	return serve(t, UploadChunkHandler(svcCtx), withCaller(req, map[string]string{"id": uploadId, "n": num}))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestCreateSessionHandler(t *testing.T) {
	svcCtx := newTestServiceContext(t)

	status, env := createSession(t, svcCtx, `{"filename":"minutes.pdf","fileSize":2048,"chunkSize":1024}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int32(0), env.Code)

	var resp struct {
		UploadId    string `json:"uploadId"`
		ChunkSize   int64  `json:"chunkSize"`
		TotalChunks int64  `json:"totalChunks"`
		ExpiresAt   int64  `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.NotEmpty(t, resp.UploadId)
	assert.Equal(t, int64(1024), resp.ChunkSize)
	assert.Equal(t, int64(2), resp.TotalChunks)
	assert.Greater(t, resp.ExpiresAt, time.Now().Unix())
}

func TestCreateSessionHandlerRejects(t *testing.T) {
	svcCtx := newTestServiceContext(t)

	status, env := createSession(t, svcCtx, `{"filename":"`+strings.Repeat("a", 300)+`","fileSize":2048}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, int32(210001), env.Code)

	status, env = createSession(t, svcCtx, `{"filename":"empty.txt","fileSize":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, int32(210003), env.Code)

	status, env = createSession(t, svcCtx, `{"filename":"x.bin","fileSize":2048,"concurrentChunksAllowed":11}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, int32(210001), env.Code)
}

func TestUploadChunkHandler(t *testing.T) {
	svcCtx := newTestServiceContext(t)
	_, env := createSession(t, svcCtx, `{"filename":"minutes.pdf","fileSize":2048,"chunkSize":1024}`)
	var created struct {
		UploadId string `json:"uploadId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	first := bytes.Repeat([]byte("a"), 1024)
	status, env := putChunk(t, svcCtx, created.UploadId, 0, first, sha256Hex(first))
	require.Equal(t, http.StatusOK, status, string(env.Data))
	var uploaded struct {
		ChunkHash       string `json:"chunkHash"`
		NextChunkNumber int64  `json:"nextChunkNumber"`
		Progress        struct {
			ChunksUploaded int64   `json:"chunksUploaded"`
			Percentage     float64 `json:"percentage"`
		} `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	assert.Equal(t, sha256Hex(first), uploaded.ChunkHash)
	assert.Equal(t, int64(1), uploaded.NextChunkNumber)
	assert.Equal(t, int64(1), uploaded.Progress.ChunksUploaded)
	assert.InDelta(t, 50.0, uploaded.Progress.Percentage, 0.01)

	// 声明的哈希与内容不符，返回重试指引
	second := bytes.Repeat([]byte("b"), 1024)
	status, env = putChunk(t, svcCtx, created.UploadId, 1, second, sha256Hex(first))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, int32(210202), env.Code)
	var guidance uploadcore.ChunkRetryGuidance
	require.NoError(t, json.Unmarshal(env.Data, &guidance))
	assert.Equal(t, int64(1), guidance.ChunkNumber)

	// 大小不符
	status, env = putChunk(t, svcCtx, created.UploadId, 1, second[:10], "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, int32(210201), env.Code)

	status, env = putChunk(t, svcCtx, "missing", 0, first, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, int32(210101), env.Code)
}

func TestGetProgressHandlerNotFound(t *testing.T) {
	svcCtx := newTestServiceContext(t)
	req := httptest.NewRequest(http.MethodGet, "/upload/v1/sessions/nope/progress", nil)
	status, env := serve(t, GetProgressHandler(svcCtx), withCaller(req, map[string]string{"id": "nope"}))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, int32(210101), env.Code)
}

func TestCancelSessionHandler(t *testing.T) {
	svcCtx := newTestServiceContext(t)
	_, env := createSession(t, svcCtx, `{"filename":"plan.dwg","fileSize":4096,"chunkSize":1024}`)
	var created struct {
		UploadId string `json:"uploadId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	req := httptest.NewRequest(http.MethodDelete, "/upload/v1/sessions/"+created.UploadId, nil)
	status, env := serve(t, CancelSessionHandler(svcCtx), withCaller(req, map[string]string{"id": created.UploadId}))
	require.Equal(t, http.StatusOK, status)
	var p struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, string(uploadcore.SessionCancelled), p.Status)

	// 已取消的会话不再接收分片
	status, env = putChunk(t, svcCtx, created.UploadId, 0, bytes.Repeat([]byte("c"), 1024), "")
	assert.Equal(t, http.StatusGone, status)
	assert.Equal(t, int32(210103), env.Code)
}

func TestCleanupSessionsHandler(t *testing.T) {
	svcCtx := newTestServiceContext(t)

	req := httptest.NewRequest(http.MethodPost, "/upload/v1/sessions/cleanup", nil)
	status, env := serve(t, CleanupSessionsHandler(svcCtx), withCaller(req, nil))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, int32(210501), env.Code)

	req = httptest.NewRequest(http.MethodPost, "/upload/v1/sessions/cleanup", nil)
	status, env = serve(t, CleanupSessionsHandler(svcCtx), withCaller(req, nil, vars.RoleAdmin))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(0), env.Code)
}

func TestProgressStreamHandler(t *testing.T) {
	svcCtx := newTestServiceContext(t)
	_, env := createSession(t, svcCtx, `{"filename":"ledger.xlsx","fileSize":2048,"chunkSize":1024}`)
	var created struct {
		UploadId string `json:"uploadId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ProgressStreamHandler(svcCtx)(w, withCaller(r, map[string]string{"id": created.UploadId}))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap struct {
		Type string `json:"type"`
		Data struct {
			UploadId string `json:"uploadId"`
			Status   string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, progress.TypeSnapshot, snap.Type)
	assert.Equal(t, created.UploadId, snap.Data.UploadId)
	assert.Equal(t, string(uploadcore.SessionPending), snap.Data.Status)

	require.Eventually(t, func() bool { return svcCtx.Hub.Subscribers(created.UploadId) == 1 },
		2*time.Second, 10*time.Millisecond)

	_, err = svcCtx.Upload.CancelSession(context.Background(), testCoop, created.UploadId)
	require.NoError(t, err)

	var evt struct {
		Type string           `json:"type"`
		Data uploadcore.Event `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, progress.TypeEvent, evt.Type)
	assert.Equal(t, uploadcore.EventSessionCancelled, evt.Data.Type)

	// 终态事件后服务端关闭连接
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
