// Package container manages the flows created through it: it owns their
// registry, their statistics and the listeners and reactor builders applied to
// every flow.
package container
