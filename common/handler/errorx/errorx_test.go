package errorx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yanshicheng/coop-nova/common/handler/errorx/types"
)

func TestCodeErrorCopies(t *testing.T) {
	base := NewWithStatus(http.StatusNotFound, 210101, "上传会话不存在")

	msg := base.WithMessage("会话 abc 不存在")
	assert.Equal(t, "上传会话不存在", base.Message())
	assert.Equal(t, "会话 abc 不存在", msg.Message())
	assert.Equal(t, base.Code(), msg.Code())
	assert.Equal(t, http.StatusNotFound, msg.HTTPStatus())

	data := base.WithData(map[string]int{"retriesLeft": 2})
	assert.Nil(t, base.Data())
	assert.Equal(t, map[string]int{"retriesLeft": 2}, data.Data())
	assert.Equal(t, "210101: 上传会话不存在", base.Error())
}

func TestCodeErrorIs(t *testing.T) {
	base := New(210001, "参数错误")
	other := New(210002, "文件过大")

	assert.True(t, errors.Is(base.WithMessage("x"), base))
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", base.WithData(1)), base))
	assert.False(t, errors.Is(base, other))
	assert.False(t, errors.Is(errors.New("plain"), base))
}

func TestErrHandler(t *testing.T) {
	status, body := ErrHandler(NewWithStatus(http.StatusGone, 210102, "上传会话已过期").WithData("x"))
	assert.Equal(t, http.StatusGone, status)
	assert.Equal(t, types.Status{Code: 210102, Message: "上传会话已过期", Data: "x"}, body)

	// 未知错误兜底为系统错误
	status, body = ErrHandler(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, int32(100001), body.(types.Status).Code)

	wrapped := fmt.Errorf("查询失败: %w", Unauthorized)
	assert.Equal(t, Unauthorized, CodeFromError(wrapped))
}
