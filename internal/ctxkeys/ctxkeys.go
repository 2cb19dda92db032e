// Package ctxkeys 保存 HTTP 层写入 context 的调用方信息，
// 认证中间件写入，限流与日志中间件读取。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	principalKey contextKey = "principal"
	clientIPKey  contextKey = "client_ip"
)

// 认证方式
const (
	AuthMethodAPIKey = "api_key"
	AuthMethodJWT    = "jwt"
)

// Principal 已认证的调用方
type Principal struct {
	// Subject 为 JWT sub 或 API Key 指纹
	Subject string
	// Method 认证方式
	Method string
}

// WithPrincipal 设置已认证调用方
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom 获取已认证调用方
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	v, ok := ctx.Value(principalKey).(Principal)
	if !ok || v.Subject == "" {
		return Principal{}, false
	}
	return v, true
}

// WithClientIP 设置客户端 IP
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP 获取客户端 IP
func ClientIP(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientIPKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// LimiterKey 返回限流维度：优先已认证调用方，否则客户端 IP
func LimiterKey(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.Method + ":" + p.Subject
	}
	if ip, ok := ClientIP(ctx); ok {
		return "ip:" + ip
	}
	return "anonymous"
}
