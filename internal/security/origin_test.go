package security

import (
	"net/http"
	"testing"
)

func TestOriginGuard(t *testing.T) {
	guard := NewOriginGuard(
		[]string{"https://defendend.dev"},
		[]string{"http://localhost:3000"},
	)

	tests := []struct {
		name    string
		method  string
		origin  string
		referer string
		devMode bool
		want    bool
	}{
		{"受信 Origin 放行", http.MethodPost, "https://defendend.dev", "", false, true},
		{"陌生 Origin 拒绝", http.MethodPost, "https://evil.example.com", "", false, false},
		{"大小写和尾斜杠归一化", http.MethodPost, "HTTPS://Defendend.DEV/", "", false, true},
		{"GET 不检查", http.MethodGet, "https://evil.example.com", "", false, true},
		{"OPTIONS 不检查", http.MethodOptions, "", "", false, true},
		{"PUT 受检", http.MethodPut, "https://evil.example.com", "", false, false},
		{"DELETE 受检", http.MethodDelete, "", "", false, false},
		{"Origin 缺失时回退 Referer", http.MethodPost, "", "https://defendend.dev/chats/42", false, true},
		{"Referer 来源陌生则拒绝", http.MethodPost, "", "https://evil.example.com/page", false, false},
		{"Origin 存在时单独定夺，不看 Referer", http.MethodPost, "https://evil.example.com", "https://defendend.dev/page", false, false},
		{"两个头都缺失则拒绝", http.MethodPost, "", "", false, false},
		{"坏 Referer 拒绝", http.MethodPost, "", "::not-a-url::", false, false},
		{"开发来源仅开发模式放行", http.MethodPost, "http://localhost:3000", "", true, true},
		{"开发来源在生产模式拒绝", http.MethodPost, "http://localhost:3000", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := guard.IsValid(tt.method, tt.origin, tt.referer, tt.devMode)
			if got != tt.want {
				t.Errorf("IsValid(%s, %q, %q, dev=%v) = %v, want %v",
					tt.method, tt.origin, tt.referer, tt.devMode, got, tt.want)
			}
		})
	}
}
