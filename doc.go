// Package lucidic is the client-side core of an observability SDK for AI
// agents. Applications emit a stream of semantically typed events (LLM
// generations, function invocations, error tracebacks, generic annotations)
// grouped into sessions, decorated with parent/child relationships to form
// causal trees, and shipped to a remote backend with minimal impact on the
// host program's latency.
//
// Call Init once at startup, then CreateSession to begin a session and
// CreateEvent (or the TraceFunc wrapper) to emit events. EndSession and a
// process-wide shutdown coordinator both flush the session's event queue,
// up to a deadline, before the session is finalized.
package lucidic
