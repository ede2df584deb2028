// Package model holds the flow building blocks shared by the runtime and the
// container: handler contracts in types and the copy-on-write BizStep table in step.
package model
