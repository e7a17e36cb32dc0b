// Package identity 参与者身份：每次挂载随机生成的 id，以及从登录 token 里取出的显示名
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const AnonymousName = "Anonymous"

var ErrNoUsername = errors.New("token has no username claim")

// Claims 与认证服务签发的 token 一致
type Claims struct {
	UserID   uint64 `json:"sub"`
	Username string `json:"username"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// NewParticipantID 不和账号绑定，每次挂载都重新生成
func NewParticipantID() string {
	return uuid.NewString()
}

// ParseToken secret 为空时只解码不验签（签名由中继服务验证），但仍检查过期时间
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	if len(secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, err
		}
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return nil, jwt.ErrTokenExpired
		}
		return claims, nil
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func UsernameFromToken(tokenString string, secret []byte) (string, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Username) == "" {
		return "", ErrNoUsername
	}
	return claims.Username, nil
}

// DisplayName 配置的名字优先，其次 token 里的 username，最后是 Anonymous
func DisplayName(configured, token string, secret []byte) string {
	if name := strings.TrimSpace(configured); name != "" {
		return name
	}
	if token != "" {
		if name, err := UsernameFromToken(token, secret); err == nil {
			return name
		}
	}
	return AnonymousName
}
