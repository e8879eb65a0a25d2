package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var (
	ErrTokenEmpty   = errors.New("token为空")
	ErrTokenFormat  = errors.New("token格式错误")
	ErrTokenInvalid = errors.New("token无效")
)

// AccountInfo 令牌中携带的账号信息
type AccountInfo struct {
	UserId        uint64   `json:"userId"`
	UserName      string   `json:"userName"`
	NickName      string   `json:"nickName"`
	CooperativeId uint64   `json:"cooperativeId"`
	Roles         []string `json:"roles"`
}

// JWTClaims 自定义声明
type JWTClaims struct {
	Account AccountInfo `json:"account"`
	jwt.StandardClaims
}

// CreateJWTToken 签发 HS256 令牌
func CreateJWTToken(account *AccountInfo, secret string, expireSeconds int64) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Account: *account,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			NotBefore: now.Unix(),
			ExpiresAt: now.Add(time.Duration(expireSeconds) * time.Second).Unix(),
			Subject:   account.UserName,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken 校验 "Bearer xxx" 格式的令牌
func VerifyToken(bearer, secret string) (*JWTClaims, error) {
	if bearer == "" {
		return nil, ErrTokenEmpty
	}
	parts := strings.SplitN(bearer, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return nil, ErrTokenFormat
	}

	token, err := jwt.ParseWithClaims(parts[1], &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
