package security

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginGuard CSRF 信任边界：校验状态变更请求的来源是否在白名单里。
// 白名单启动后只读，开发来源仅在 developmentMode 下生效
type OriginGuard struct {
	trusted map[string]struct{}
	dev     map[string]struct{}
}

func NewOriginGuard(trusted, dev []string) *OriginGuard {
	g := &OriginGuard{
		trusted: make(map[string]struct{}, len(trusted)),
		dev:     make(map[string]struct{}, len(dev)),
	}
	for _, o := range trusted {
		g.trusted[normalizeOrigin(o)] = struct{}{}
	}
	for _, o := range dev {
		g.dev[normalizeOrigin(o)] = struct{}{}
	}
	return g
}

// IsValid 只检查状态变更方法（POST/PUT/PATCH/DELETE），其余一律放行。
// Origin 头存在时单独定夺；缺失时回退解析 Referer 的 scheme://host[:port]；
// 两者都没有则拒绝（fail closed）
func (g *OriginGuard) IsValid(method, origin, referer string, developmentMode bool) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}

	if origin != "" {
		return g.allowed(normalizeOrigin(origin), developmentMode)
	}

	if referer != "" {
		parsed, err := url.Parse(referer)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return false
		}
		return g.allowed(parsed.Scheme+"://"+parsed.Host, developmentMode)
	}

	return false
}

func (g *OriginGuard) allowed(origin string, developmentMode bool) bool {
	if _, ok := g.trusted[origin]; ok {
		return true
	}
	if developmentMode {
		if _, ok := g.dev[origin]; ok {
			return true
		}
	}
	return false
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}
