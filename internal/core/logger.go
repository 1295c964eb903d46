// Package core defines the domain types (§3) and capability interfaces
// (§4.1, §4.6, §4.8, §4.9, §4.10) shared by every engine, so that engines
// depend only on these narrow contracts and never on a concrete adapter.
package core

// ILogger is the narrow logging contract every component depends on.
// pkg/logging supplies the zap-backed implementation; tests can supply a
// no-op or recording fake.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
