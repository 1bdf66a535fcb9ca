// Package model defines the outbound model-call boundary: the Gateway
// interface, typed call errors with retryability hints, and the bounded
// exponential backoff policy applied to every completion.
package model
