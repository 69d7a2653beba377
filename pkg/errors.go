// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Error'lar sentinel değerlerdir; detay fmt.Errorf("%w: ...") ile eklenir:
//
//	if errors.Is(err, pkg.ErrStoreUnavailable) { ... }
package pkg

import "errors"

// Domain-level error'lar.
// HTTP katmanı bunları status code'a, WebSocket katmanı error event code'una map'ler.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrRateLimited   = errors.New("rate limited")
	ErrInternal      = errors.New("internal error")

	// ErrStoreUnavailable, shared store (Redis) timeout veya bağlantı hatası.
	// Bağlantıyı kapatmaz, sadece ilgili operasyon başarısız sayılır.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// WebSocket error event code'ları.
const (
	CodeValidation       = "validation"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeRateLimited      = "rate_limited"
	CodeStoreUnavailable = "store_unavailable"
	CodeSessionExpired   = "session_expired"
	CodeInternal         = "internal"
)

// ErrorCode, bir error'ı client'a gönderilecek error event code'una çevirir.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return CodeValidation
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}
