// ABOUTME: Conversation analysis: prompts a model over recent history for insights
// ABOUTME: Parses structured JSON replies with a heuristic fallback, appends snapshots

package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/model"
	"github.com/2389/symposium/internal/store"
)

// historyLimit caps how many recent messages feed one analysis pass.
const historyLimit = 50

// Defaults used when the session does not name an analysis model.
const (
	defaultProvider = "anthropic"
	defaultModel    = "claude-sonnet-4-20250514"
)

// Analyzer produces AnalysisSnapshot records for sessions by asking a model
// to summarize the conversation's structure.
type Analyzer struct {
	store   store.Store
	bus     *bus.Bus
	gateway model.Gateway
	policy  model.RetryPolicy
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Analyzer. Pass nil logger for default.
func New(st store.Store, b *bus.Bus, gw model.Gateway, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		store:   st,
		bus:     b,
		gateway: gw,
		policy:  model.DefaultRetryPolicy(),
		timeout: 60 * time.Second,
		logger:  logger.With("component", "analysis"),
	}
}

// insightReply is the JSON shape the analysis prompt asks the model for.
type insightReply struct {
	Topics       []string `json:"topics"`
	Themes       []string `json:"themes"`
	Tensions     []string `json:"tensions"`
	Convergences []string `json:"convergences"`
	Depth        string   `json:"depth"`
	Phase        string   `json:"phase"`
}

// Analyze runs one analysis pass over a session's recent messages, appends
// the resulting snapshot to the session's timeline, and announces it.
func (a *Analyzer) Analyze(ctx context.Context, sessionID string) (*store.AnalysisSnapshot, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	messages, err := a.store.ListMessages(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("session %s has no messages to analyze", sessionID)
	}
	participants, err := a.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}
	total, err := a.store.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	provider := session.Moderator.AnalysisProvider
	if provider == "" {
		provider = defaultProvider
	}
	modelID := session.Moderator.AnalysisModel
	if modelID == "" {
		modelID = defaultModel
	}

	req := model.CallRequest{
		Provider:     provider,
		Model:        modelID,
		Messages:     []model.ChatMessage{{Role: model.RoleUser, Content: buildPrompt(messages)}},
		Temperature:  0.2,
		MaxTokens:    1024,
		SystemPrompt: analysisSystemPrompt,
	}

	var insights insightReply
	resp, err := model.CallWithRetry(ctx, a.gateway, req, a.policy, a.timeout, a.logger, nil)
	if err != nil {
		a.logger.Warn("analysis model call failed, using heuristics",
			"session_id", sessionID, "error", err)
		insights = heuristicInsights(messages, total)
	} else {
		insights = parseInsights(resp.Content, messages, total)
	}

	snap := &store.AnalysisSnapshot{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		MessageCount:     total,
		ParticipantCount: len(participants),
		Topics:           insights.Topics,
		Themes:           insights.Themes,
		Tensions:         insights.Tensions,
		Convergences:     insights.Convergences,
		Depth:            insights.Depth,
		Phase:            insights.Phase,
		CreatedAt:        time.Now(),
	}
	if err := a.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("appending snapshot: %w", err)
	}

	a.bus.Emit(bus.AnalysisSnapshotSaved, sessionID, bus.AnalysisPayload{
		SessionID:  sessionID,
		SnapshotID: snap.ID,
		Snapshot:   snap,
	})
	a.logger.Info("analysis snapshot saved",
		"session_id", sessionID,
		"snapshot_id", snap.ID,
		"message_count", total)
	return snap, nil
}

const analysisSystemPrompt = `You analyze multi-party dialogues. Reply with a single JSON object:
{"topics":[],"themes":[],"tensions":[],"convergences":[],"depth":"surface|moderate|deep","phase":"opening|exploration|deepening|convergence|closing"}
No prose outside the JSON object.`

func buildPrompt(messages []*store.Message) string {
	var b strings.Builder
	b.WriteString("Analyze this conversation:\n\n")
	for _, m := range messages {
		b.WriteString(m.ParticipantName)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// parseInsights reads the model's JSON reply, tolerating surrounding prose
// and code fences. Unparseable replies fall back to heuristics.
func parseInsights(reply string, messages []*store.Message, total int) insightReply {
	raw := extractJSON(reply)
	var insights insightReply
	if raw == "" || json.Unmarshal([]byte(raw), &insights) != nil {
		return heuristicInsights(messages, total)
	}
	if insights.Depth == "" {
		insights.Depth = "surface"
	}
	if insights.Phase == "" {
		insights.Phase = phaseForCount(total)
	}
	return insights
}

// extractJSON returns the first balanced {...} block in s, or "".
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// heuristicInsights derives coarse insights without a model: the most
// frequent long words become topics, depth and phase follow message volume.
func heuristicInsights(messages []*store.Message, total int) insightReply {
	counts := make(map[string]int)
	for _, m := range messages {
		for _, word := range strings.Fields(strings.ToLower(m.Content)) {
			word = strings.Trim(word, ".,;:!?\"'()[]")
			if len(word) >= 6 {
				counts[word]++
			}
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > 5 {
		words = words[:5]
	}

	depth := "surface"
	if total >= 20 {
		depth = "moderate"
	}
	return insightReply{
		Topics: words,
		Depth:  depth,
		Phase:  phaseForCount(total),
	}
}

func phaseForCount(total int) string {
	switch {
	case total < 5:
		return "opening"
	case total < 20:
		return "exploration"
	default:
		return "deepening"
	}
}
