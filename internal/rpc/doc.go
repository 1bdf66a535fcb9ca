// Package rpc is the tool dispatch boundary: every read and mutation enters
// through its JSON-RPC 2.0 method table, over HTTP or the socket layer.
// Handlers validate typed params before touching state and emit one bus
// event per successful mutation.
package rpc
