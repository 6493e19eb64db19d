// Package transport moves JSON-RPC messages between one byte-stream
// connection and a local owner.
//
// Ownership boundary:
// - reader worker: decode, classify into queue.Classified, poll reader flag
// - writer worker: take from the Sender handoff, poll writer flag, encode
// - assembly, join and the cooperative shutdown sequence
//
// Shutdown is cooperative. The reader stops after routing a message once its
// flag is set, or on end-of-stream. The writer keeps consuming while its flag
// is set but discards what it receives; it only stops once the Sender is
// closed. Shutdown performs both steps and joins.
package transport
