// Package token 提供了用于生成和验证设备令牌 (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTManager 负责管理设备令牌的生成和验证。
type JWTManager struct {
	secretKey []byte
	tokenDur  time.Duration
}

// DeviceClaims 标识一个浏览器设备及其当前页面会话。
// DeviceID 在设备生命周期内不变，SessionID 每次打开页面重新生成。
type DeviceClaims struct {
	DeviceID  string `json:"deviceId"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string, tokenExpireDays int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Duration(tokenExpireDays) * 24 * time.Hour,
	}
}

// IssueSession 为设备签发新的页面会话令牌，deviceID 为空时分配新设备。
func (m *JWTManager) IssueSession(deviceID string) (string, *DeviceClaims, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	now := time.Now()
	claims := &DeviceClaims{
		DeviceID:  deviceID,
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyToken 验证给定的 token 字符串，有效时返回 DeviceClaims。
func (m *JWTManager) VerifyToken(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*DeviceClaims); ok && token.Valid && claims.DeviceID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
