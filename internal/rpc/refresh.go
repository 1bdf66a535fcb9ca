// ABOUTME: Static tool-name to refresh-key mapping for cache invalidation
// ABOUTME: Mutating tools always yield a non-empty key set

package rpc

// Refresh keys name cached client views that a completed tool call makes
// stale. Clients refetch the named resources; keys carry no data themselves.
const (
	KeySessionsList   = "sessions-list"
	KeyCurrentSession = "current-session"
	KeySessionData    = "session-data"
	KeyAnalysisData   = "analysis-data"
	KeyExperimentsList = "experiments-list"
	KeyAPIErrors      = "api-errors"
)

// toolKeyClass buckets every mutating tool name.
var toolKeyClass = map[string]string{
	"create_session":         "session-list",
	"delete_session":         "session-list",
	"update_session":         "session-list",
	"duplicate_session":      "session-list",
	"import_session":         "session-list",
	"switch_current_session": "session-list",

	"send_message":              "session-data",
	"update_message":            "session-data",
	"delete_message":            "session-data",
	"clear_messages":            "session-data",
	"add_participant":           "session-data",
	"remove_participant":        "session-data",
	"update_participant":        "session-data",
	"update_participant_status": "session-data",
	"start_conversation":        "session-data",
	"pause_conversation":        "session-data",
	"resume_conversation":       "session-data",
	"stop_conversation":         "session-data",
	"inject_prompt":             "session-data",

	"trigger_live_analysis":  "analysis",
	"analyze_conversation":   "analysis",
	"save_analysis_snapshot": "analysis",
	"clear_analysis_history": "analysis",

	"create_experiment": "experiment",
	"update_experiment": "experiment",
	"delete_experiment": "experiment",
	"start_experiment":  "experiment",
	"stop_experiment":   "experiment",

	"log_api_error":    "api-errors",
	"clear_api_errors": "api-errors",
}

// KeysForTool derives the refresh keys invalidated by a completed tool call.
// Read-only tools return nil; every mutating tool yields at least one key.
func KeysForTool(tool, sessionID, experimentID string) []string {
	switch toolKeyClass[tool] {
	case "session-list":
		return []string{KeySessionsList, KeyCurrentSession}
	case "session-data":
		keys := []string{KeySessionData}
		if sessionID != "" {
			keys = append(keys, "session-"+sessionID)
		}
		return keys
	case "analysis":
		keys := []string{KeyAnalysisData}
		if sessionID != "" {
			keys = append(keys, "analysis-"+sessionID)
		}
		return keys
	case "experiment":
		keys := []string{KeyExperimentsList}
		if experimentID != "" {
			keys = append(keys, "experiment-"+experimentID)
		}
		return keys
	case "api-errors":
		return []string{KeyAPIErrors}
	default:
		return nil
	}
}
