// Package types defines the contracts shared by the runtime: handlers and their
// tagged results, execution loops, events, receivers and the optional capability
// interfaces a flow or reactor may implement.
package types
