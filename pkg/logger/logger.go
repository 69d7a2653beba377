// Package logger, uygulama genelinde kullanılan slog.Logger'ı kurar.
//
// İki format desteklenir:
//   - "text": tint handler: renkli, insan okunur (development)
//   - "json": slog.JSONHandler: log toplayıcılar için (production)
//
// Component'ler kendi logger'larını türetir:
//
//	log := logger.With("component", "ws")
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New, verilen seviye ve formatla stdout'a yazan bir logger oluşturur.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter, New ile aynıdır ama çıktı hedefi dışarıdan verilir (test için).
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
		})
	}

	return slog.New(handler)
}

// ParseLevel, "debug" / "info" / "warn" / "error" string'ini slog.Level'a çevirir.
// Bilinmeyen değerlerde info döner.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard, hiçbir şey yazmayan logger: testlerde kullanılır.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
