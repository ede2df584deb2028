// Package fsmflow provides an embeddable, event-driven finite state machine runtime.
//
// A flow is any value whose behaviour is expressed as a set of states; every
// state is an event handler mapping event names to transitions that yield the
// next state. Events may be offered to a flow from any goroutine. Each flow has
// its own mailbox and is drained by at most one goroutine at a time on the
// execution loop it is bound to, so handlers of a flow never run concurrently
// and observe events in submission order.
//
// The Service facade wires a container, an execution loop and the optional
// observability layers:
//
//	srv, _ := fsmflow.New(fsmflow.WithConfig(cfg))
//	_ = srv.Start(ctx)
//	defer srv.Shutdown(ctx)
//	receiver, _ := srv.Create(gate, gate.Locked())
//	receiver.AcceptEvent("coin")
//
// States are usually built with the step package; see examples/turnstile.
package fsmflow
