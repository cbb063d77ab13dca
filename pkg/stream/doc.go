// Package stream provides the push-based stream abstraction observed by
// streamwatch tests.
//
// A Stream delivers elements to an Observer from Subscribe until it completes,
// fails, or its context is cancelled. Streams are identity-keyed: the engine
// uses a Stream value as a map key, so implementations must be pointer types.
// Every constructor in this package returns a pointer.
//
// Subject is the multicast hub placed between one stream and all the testers
// attached to it.
package stream
