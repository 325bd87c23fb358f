// Package audio 提供实时语音会话所需的 PCM 编解码与播放排程。
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// InputSampleRate 是上行麦克风音频的采样率
	InputSampleRate = 16000
	// OutputSampleRate 是下行模型语音的采样率
	OutputSampleRate = 24000
	// InputMIMEType 是上行音频帧的 MIME 描述
	InputMIMEType = "audio/pcm;rate=16000"
)

// ErrOddLength 表示 PCM16 字节流长度不是 2 的倍数
var ErrOddLength = errors.New("audio: pcm16 payload has odd length")

// EncodePCM16 把 [-1,1] 区间的浮点采样转换为 16 位小端 PCM，越界值会被截断。
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * 32768
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 把 16 位小端 PCM 转换为 [-1,1) 浮点采样
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// DecodeFloat32LE 解析浏览器直接上传的 Float32Array 原始字节
func DecodeFloat32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("audio: float32 payload length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// EncodeFrame 把一帧麦克风采样编码为 base64 PCM16 数据
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// Duration 计算单声道采样序列的播放时长（秒）
func Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate)
}
