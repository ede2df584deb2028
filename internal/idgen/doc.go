// Package idgen generates the opaque identifiers used for unique event names
// and queue messages. The generator is a variable so tests can make it
// deterministic.
package idgen
