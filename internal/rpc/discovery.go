// ABOUTME: Read-only discoverability: tools, prompts, and resources
// ABOUTME: These handlers never mutate state and never emit events

package rpc

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// ToolInfo describes one callable tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// toolDescriptions covers the mutating and read surface; discoverability
// methods describe themselves too.
var toolDescriptions = map[string]string{
	"create_session":         "Create a new dialogue session",
	"get_session":            "Fetch one session by id",
	"list_sessions":          "List sessions, optionally filtered by status",
	"update_session":         "Update a session's name, description, or moderator settings",
	"delete_session":         "Delete a session and all its data",
	"duplicate_session":      "Copy a session's configuration (optionally with history)",
	"import_session":         "Recreate a session from an export document",
	"switch_current_session": "Point the current-session cursor at another session",
	"get_current_session":    "Fetch the session the current-session cursor points at",

	"add_participant":           "Add a model participant to a session",
	"list_participants":         "List a session's participants in turn order",
	"update_participant":        "Update a participant's identity, prompt, or settings",
	"update_participant_status": "Set a participant's status",
	"remove_participant":        "Remove a participant from a session",

	"send_message":   "Append a message to a session",
	"get_messages":   "Fetch a session's messages, oldest first",
	"update_message": "Replace a message's content",
	"delete_message": "Delete one message",
	"clear_messages": "Delete all of a session's messages",

	"start_conversation":  "Begin automatic turn-taking with a starting prompt",
	"pause_conversation":  "Hold the conversation after the in-flight turn",
	"resume_conversation": "Continue a paused conversation",
	"stop_conversation":   "Halt the conversation and return the session to idle",
	"inject_prompt":       "Add a moderator prompt to a paused conversation and resume",

	"trigger_live_analysis":  "Run a model analysis pass over recent messages",
	"analyze_conversation":   "Run a model analysis pass over recent messages",
	"get_analysis_history":   "Fetch a session's analysis timeline",
	"save_analysis_snapshot": "Append a caller-provided analysis snapshot",
	"clear_analysis_history": "Delete a session's analysis timeline",

	"export_session": "Export a session as a JSON document or CSV rows",

	"log_api_error":    "Record a model call failure in the audit trail",
	"get_api_errors":   "Fetch a session's recorded model call failures",
	"clear_api_errors": "Delete a session's recorded model call failures",

	"list_tools":     "List callable tools",
	"list_prompts":   "List available conversation prompt templates",
	"get_prompt":     "Fetch one prompt template",
	"list_resources": "List readable resources",
	"read_resource":  "Read one resource by uri",
}

func handleListTools(_ context.Context, d *Dispatcher, _ json.RawMessage) (any, error) {
	tools := make([]ToolInfo, 0, len(d.methods))
	for name := range d.methods {
		tools = append(tools, ToolInfo{Name: name, Description: toolDescriptions[name]})
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return map[string]any{"tools": tools}, nil
}

// PromptInfo describes one reusable conversation opener.
type PromptInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Template    string `json:"template,omitempty"`
}

var promptCatalog = []PromptInfo{
	{
		Name:        "socratic",
		Description: "Question-driven inquiry between participants",
		Template:    "Explore the following question through Socratic dialogue, each participant probing the assumptions of the previous answer: {topic}",
	},
	{
		Name:        "debate",
		Description: "Structured two-sided debate",
		Template:    "Debate the following proposition. Take opposing positions, steelman the other side before rebutting: {topic}",
	},
	{
		Name:        "brainstorm",
		Description: "Divergent idea generation",
		Template:    "Brainstorm approaches to the following problem. Build on each other's ideas rather than critiquing: {topic}",
	},
}

func handleListPrompts(_ context.Context, _ *Dispatcher, _ json.RawMessage) (any, error) {
	listed := make([]PromptInfo, len(promptCatalog))
	for i, p := range promptCatalog {
		listed[i] = PromptInfo{Name: p.Name, Description: p.Description}
	}
	return map[string]any{"prompts": listed}, nil
}

type getPromptParams struct {
	Name string `json:"name"`
}

func handleGetPrompt(_ context.Context, _ *Dispatcher, params json.RawMessage) (any, error) {
	var p getPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParams("name is required")
	}
	for _, prompt := range promptCatalog {
		if prompt.Name == p.Name {
			return prompt, nil
		}
	}
	return nil, invalidParams("unknown prompt: " + p.Name)
}

// ResourceInfo describes one readable resource.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Description string `json:"description"`
}

const (
	resourceSessions = "symposium://sessions"
	resourceCurrent  = "symposium://sessions/current"
	sessionURIPrefix = "symposium://sessions/"
)

func handleListResources(_ context.Context, _ *Dispatcher, _ json.RawMessage) (any, error) {
	return map[string]any{"resources": []ResourceInfo{
		{URI: resourceSessions, Description: "All sessions"},
		{URI: resourceCurrent, Description: "The current session, if any"},
		{URI: sessionURIPrefix + "{id}", Description: "One session with participants and messages"},
	}}, nil
}

type readResourceParams struct {
	URI string `json:"uri"`
}

func handleReadResource(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p readResourceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	switch {
	case p.URI == resourceSessions:
		return handleListSessions(ctx, d, nil)
	case p.URI == resourceCurrent:
		return handleGetCurrentSession(ctx, d, nil)
	case strings.HasPrefix(p.URI, sessionURIPrefix):
		id := strings.TrimPrefix(p.URI, sessionURIPrefix)
		session, err := d.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		participants, err := d.store.ListParticipants(ctx, id)
		if err != nil {
			return nil, err
		}
		messages, err := d.store.ListMessages(ctx, id, 0)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"session":      session,
			"participants": participants,
			"messages":     messages,
		}, nil
	default:
		return nil, invalidParams("unknown resource uri: " + p.URI)
	}
}
