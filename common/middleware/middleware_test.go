package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/yanshicheng/coop-nova/pkg/jwt"
)

const testSecret = "middleware-secret"

func issue(t *testing.T, account jwt.AccountInfo) string {
	t.Helper()
	token, err := jwt.CreateJWTToken(&account, testSecret, 600)
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestJWTAuthMiddleware(t *testing.T) {
	var got ctxdata.Identity
	handler := NewJWTAuthMiddleware(testSecret).Handle(func(w http.ResponseWriter, r *http.Request) {
		got = ctxdata.Identity{
			UserId:        ctxdata.GetUserId(r.Context()),
			UserName:      ctxdata.GetUserName(r.Context()),
			CooperativeId: ctxdata.GetCooperativeId(r.Context()),
			Roles:         ctxdata.GetRoles(r.Context()),
		}
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/upload/v1/sessions/x/progress", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, int64(100002), decode(t, rec).Code)
	})

	t.Run("header token", func(t *testing.T) {
		token := issue(t, jwt.AccountInfo{UserId: 3, UserName: "alice", CooperativeId: 7, Roles: []string{"admin"}})
		req := httptest.NewRequest(http.MethodGet, "/upload/v1/sessions/x/progress", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, ctxdata.Identity{UserId: 3, UserName: "alice", CooperativeId: 7, Roles: []string{"admin"}}, got)
	})

	t.Run("query token", func(t *testing.T) {
		token := issue(t, jwt.AccountInfo{UserId: 4, UserName: "bob", CooperativeId: 9})
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/upload/v1/sessions/x/progress/ws?token="+token, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, uint64(9), got.CooperativeId)
	})

	t.Run("missing cooperative", func(t *testing.T) {
		token := issue(t, jwt.AccountInfo{UserId: 5, UserName: "carol"})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, int64(100003), decode(t, rec).Code)
	})
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	handler := PanicRecoveryMiddleware(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler(rec, httptest.NewRequest(http.MethodPost, "/upload/v1/sessions", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, int64(100001), decode(t, rec).Code)
}
