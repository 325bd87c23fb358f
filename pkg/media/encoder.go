// Package media 负责把上传的图片转换成 AI 服务可接受的内联 base64 载荷。
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"agri-ai-go/pkg/errorx"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes 限制单张图片的大小（20MB，与 Gemini 内联数据上限一致）
const MaxImageBytes = 20 << 20

// InlineData 是 base64 编码后的二进制载荷
type InlineData struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// Encode 读取图片流并返回 base64 载荷。读取失败、空文件、超限或非图片时返回 EncodingError。
func Encode(r io.Reader, filename string) (InlineData, error) {
	if r == nil {
		return InlineData{}, errorx.Encoding(errors.New("nil reader"))
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return InlineData{}, errorx.Encoding(fmt.Errorf("read image: %w", err))
	}
	if len(data) == 0 {
		return InlineData{}, errorx.Encoding(errors.New("image is empty"))
	}
	if len(data) > MaxImageBytes {
		return InlineData{}, errorx.Encoding(fmt.Errorf("image exceeds %d bytes", MaxImageBytes))
	}

	mimeType := detectMimeType(data, filename)
	if !strings.HasPrefix(mimeType, "image/") {
		return InlineData{}, errorx.Encoding(fmt.Errorf("unsupported content type %q", mimeType))
	}

	return InlineData{
		Data:     base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
	}, nil
}

// Decode 把载荷还原为原始字节
func (d InlineData) Decode() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, fmt.Errorf("decode inline data: %w", err)
	}
	return raw, nil
}

// DataURL 生成前端可直接展示的 data URL 预览
func DataURL(d InlineData) string {
	return "data:" + d.MIMEType + ";base64," + d.Data
}

func detectMimeType(data []byte, filename string) string {
	mt := mimetype.Detect(data)
	if mt != nil && mt.String() != "application/octet-stream" {
		// 去掉 charset 等参数
		if base, _, err := mime.ParseMediaType(mt.String()); err == nil {
			return base
		}
		return mt.String()
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if base, _, err := mime.ParseMediaType(byExt); err == nil {
				return base
			}
		}
	}

	return "application/octet-stream"
}
