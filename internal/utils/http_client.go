package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient 上游提供方适配器共用的客户端。Timeout 覆盖从建连到
// 读完响应体的整个周期，流式响应也受其约束，因此各适配器默认给到分钟级。
// 上游只有两家，连接池不需要太宽
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          32,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       2 * time.Minute,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
