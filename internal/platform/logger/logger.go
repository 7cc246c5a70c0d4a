// Package logger wraps zap with field scrubbing tuned to what this
// proxy actually logs: upstream credentials, tenancy identifiers, and
// raw conversation text. Secrets are redacted outright, identifiers
// are replaced by a salted short hash so log lines stay correlatable,
// and message content is reduced to its length.
package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Logger struct {
	sugar *zap.SugaredLogger
}

func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zapLogger.Sugar()}, nil
}

func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, scrub(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, scrub(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, scrub(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, scrub(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, scrub(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(scrub(keysAndValues)...)}
}

// Field classes. Everything the proxy logs is flat key/value pairs, so
// classification is by key substring, with one value-shape check for
// keys that slip through carrying a provider API key.

// secretKeys match anything that could open an account: the upstream
// bearer keys, the graph password, auth headers.
var secretKeys = []string{"key", "password", "secret", "authorization", "bearer"}

// identityKeys are correlatable but shouldn't appear raw: the trace id
// joins a user turn to its assistant turn, and partition/instance name
// the tenant.
var identityKeys = []string{"trace_id", "request_id", "partition", "instance"}

// contentKeys carry conversation text. The proxy exists to store that
// text in the graph, not in its own logs.
var contentKeys = []string{"content", "message", "prompt", "term", "reply", "body"}

func scrub(kv []interface{}) []interface{} {
	if len(kv) == 0 || !scrubOn() {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.TrimSpace(strings.ToLower(toString(kv[i])))
		out = append(out, toString(kv[i]), scrubValue(key, kv[i+1]))
	}
	return out
}

func scrubValue(key string, val interface{}) interface{} {
	switch {
	case matchesAny(key, secretKeys):
		return "[REDACTED]"
	case matchesAny(key, identityKeys):
		return hashValue(toString(val))
	case matchesAny(key, contentKeys):
		if s, ok := val.(string); ok {
			return fmt.Sprintf("len=%d", len(s))
		}
		return val
	default:
		if s, ok := val.(string); ok && looksLikeAPIKey(s) {
			return "[REDACTED]"
		}
		return val
	}
}

func matchesAny(key string, class []string) bool {
	for _, frag := range class {
		if strings.Contains(key, frag) {
			return true
		}
	}
	return false
}

// hashValue keeps identifiers correlatable across log lines without
// exposing the raw id. The salt comes from RSV_LOG_HASH_SALT.
func hashValue(raw string) string {
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if salt := scrubSalt(); salt != "" {
		_, _ = h.Write([]byte(salt))
	}
	_, _ = h.Write([]byte(raw))
	sum := hex.EncodeToString(h.Sum(nil))
	return "hash:" + sum[:12]
}

// looksLikeAPIKey catches provider keys logged under an unclassified
// key name. OpenAI-style keys all start with "sk-".
func looksLikeAPIKey(s string) bool {
	return strings.HasPrefix(s, "sk-") && len(s) > 20
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

var (
	scrubOnce    sync.Once
	scrubEnabled bool
	scrubHashKey string
)

// scrubOn reads RSV_LOG_REDACTION once; scrubbing is on unless
// explicitly disabled.
func scrubOn() bool {
	scrubInit()
	return scrubEnabled
}

func scrubSalt() string {
	scrubInit()
	return scrubHashKey
}

func scrubInit() {
	scrubOnce.Do(func() {
		switch strings.TrimSpace(strings.ToLower(os.Getenv("RSV_LOG_REDACTION"))) {
		case "0", "false", "no", "off":
			scrubEnabled = false
		default:
			scrubEnabled = true
		}
		scrubHashKey = strings.TrimSpace(os.Getenv("RSV_LOG_HASH_SALT"))
	})
}
