// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"agri-ai-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 超过该长度的请求/响应体只记录前缀
const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 图片上传（multipart）、WebSocket 升级与凭证请求不读取请求体；
// 签发令牌与凭证接口的响应体不记录，路径中的 :token 段被替换。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil && loggableBody(c) {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 放回请求体，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", redactPath(c),
			"requestBody", truncate(string(requestBody)),
			"responseBody", responseForLog(c, blw.body),
		)
	}
}

func loggableBody(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), "multipart/") || strings.HasSuffix(c.Request.URL.Path, "/credential") {
		return false
	}
	return !strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// 响应体中含有令牌或密钥状态的接口
func secretResponse(path string) bool {
	return strings.HasSuffix(path, "/session") || strings.HasSuffix(path, "/credential")
}

func responseForLog(c *gin.Context, body *bytes.Buffer) string {
	if secretResponse(c.Request.URL.Path) {
		return redacted
	}
	return body.String()
}

const redacted = "[REDACTED]"

// redactPath 按路由模板把 :token 段替换掉，未匹配路由时原样返回
func redactPath(c *gin.Context) string {
	path := c.Request.URL.Path
	tmpl := c.FullPath()
	if !strings.Contains(tmpl, ":token") {
		return path
	}
	segs := strings.Split(path, "/")
	tsegs := strings.Split(tmpl, "/")
	if len(segs) != len(tsegs) {
		return tmpl
	}
	for i, ts := range tsegs {
		if ts == ":token" {
			segs[i] = redacted
		}
	}
	return strings.Join(segs, "/")
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "..."
}
