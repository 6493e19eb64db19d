// Package message owns the JSON-RPC message shapes and their codec.
//
// Ownership boundary:
// - Request / Notification / Response tagged union
// - classification of a decoded payload by shape
// - Read (decode_next) and Write (encode) over Content-Length frames
package message
