package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey 缺少上游凭证，属于致命配置错误，在发起任何网络调用之前返回
	ErrMissingAPIKey = errors.New("provider api key not configured")

	// ErrUnknownProvider provider 取值没有匹配到任何已注册适配器
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrEmptyResponse 上游返回了零个补全
	ErrEmptyResponse = errors.New("provider returned empty response")
)

// UpstreamError 上游非成功状态或响应体异常，保留状态码和响应体原文向上传递
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream returned status %d: %s", e.Provider, e.Status, e.Body)
}
