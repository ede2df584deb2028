// Package policy provides declarative admission rules a container applies to
// every flow on its first activation.
package policy
