package httpapi

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("INFERD_LOG_LEVEL"))

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

func logInferStart(r *http.Request, model string) {
	if zlog != nil {
		zlog.Info().Str("model", model).Str("remote", r.RemoteAddr).Msg("infer start")
		return
	}
	log.Printf("infer start model=%s remote=%s", model, r.RemoteAddr)
}

func logInferEnd(r *http.Request, model, status string, d time.Duration, err error) {
	if zlog != nil {
		ev := zlog.Info().Str("model", model).Str("status", status).Dur("duration", d)
		if err != nil {
			ev = ev.Str("error", err.Error())
		}
		ev.Msg("infer end")
		return
	}
	if err != nil {
		log.Printf("infer end model=%s status=%s duration=%s error=%v", model, status, d, err)
		return
	}
	log.Printf("infer end model=%s status=%s duration=%s", model, status, d)
}
