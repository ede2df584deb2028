// Package tracing wraps OpenTelemetry so flow dispatch can be traced without the
// runtime importing the SDK directly. Until Init is called spans are no-ops.
package tracing
