package errorx

import (
	"errors"
	"net/http"
	"strconv"
)

var (
	// ServerError 未识别的错误统一按系统错误返回
	ServerError = NewWithStatus(http.StatusInternalServerError, 100001, "服务内部错误")
	// Unauthorized 身份认证失败
	Unauthorized = NewWithStatus(http.StatusUnauthorized, 100002, "Token验证失败")
)

// CodeError 带业务码的错误
type CodeError struct {
	code   int
	msg    string
	status int
	data   any
}

// New 创建业务错误，沿用 200 状态码，仅通过 code 区分
func New(code int, msg string) *CodeError {
	return &CodeError{code: code, msg: msg, status: http.StatusOK}
}

// NewWithStatus 创建带 HTTP 状态码的业务错误
func NewWithStatus(status, code int, msg string) *CodeError {
	return &CodeError{code: code, msg: msg, status: status}
}

func (e *CodeError) Error() string {
	return strconv.Itoa(e.code) + ": " + e.msg
}

func (e *CodeError) Code() int       { return e.code }
func (e *CodeError) Message() string { return e.msg }
func (e *CodeError) HTTPStatus() int { return e.status }
func (e *CodeError) Data() any       { return e.data }

// WithMessage 返回替换了提示信息的副本
func (e *CodeError) WithMessage(msg string) *CodeError {
	c := *e
	c.msg = msg
	return &c
}

// WithData 返回携带附加数据的副本
func (e *CodeError) WithData(data any) *CodeError {
	c := *e
	c.data = data
	return &c
}

// Is 按业务码比较，副本与原始错误视为同一种错误
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// CodeFromError 从错误链中取出业务错误
func CodeFromError(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ServerError
}
