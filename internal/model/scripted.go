// ABOUTME: Scripted Gateway implementation for tests
// ABOUTME: Replays a fixed sequence of responses/errors and records requests

package model

import (
	"context"
	"sync"
)

// ScriptedResult is one step in a ScriptedGateway's playback.
type ScriptedResult struct {
	Response *CallResponse
	Err      error
}

// ScriptedGateway is a Gateway test double that replays a fixed script.
// When the script is exhausted it repeats its final entry, so a two-entry
// script can drive an arbitrarily long conversation.
type ScriptedGateway struct {
	mu       sync.Mutex
	script   []ScriptedResult
	cursor   int
	Requests []CallRequest
}

// NewScriptedGateway builds a gateway replaying the given results in order.
func NewScriptedGateway(script ...ScriptedResult) *ScriptedGateway {
	return &ScriptedGateway{script: script}
}

// Reply is a convenience for a successful scripted step.
func Reply(content string) ScriptedResult {
	return ScriptedResult{Response: &CallResponse{
		Content: content,
		Usage:   Usage{InputTokens: 10, OutputTokens: 5},
	}}
}

// Fail is a convenience for a failing scripted step.
func Fail(err error) ScriptedResult {
	return ScriptedResult{Err: err}
}

// Complete implements Gateway.
func (g *ScriptedGateway) Complete(ctx context.Context, req CallRequest) (*CallResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.Requests = append(g.Requests, req)

	if len(g.script) == 0 {
		return &CallResponse{Content: "ok"}, nil
	}
	step := g.script[g.cursor]
	if g.cursor < len(g.script)-1 {
		g.cursor++
	}
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

// CallCount reports how many completions were requested.
func (g *ScriptedGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}
