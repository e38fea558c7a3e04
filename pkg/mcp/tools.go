package mcp

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/orchestrator"
)

// Tool argument structs.

type lessonArgs struct {
	LessonID string `json:"lesson_id"`
	ClientID string `json:"client_id"`
}

type resumeArgs struct {
	LessonID   string   `json:"lesson_id"`
	ClientID   string   `json:"client_id"`
	VariantIDs []string `json:"variant_ids"`
}

type variantArgs struct {
	LessonID  string `json:"lesson_id"`
	VariantID string `json:"variant_id"`
}

type clientArgs struct {
	ClientID string `json:"client_id"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"lessongen_generate":    handleGenerate,
	"lessongen_resume":      handleResume,
	"lessongen_get_variant": handleGetVariant,
	"lessongen_stats":       handleStats,
	"lessongen_budget":      handleBudget,
	"lessongen_rate_status": handleRateStatus,
	"lessongen_invalidate":  handleInvalidate,
	"lessongen_cost_report": handleCostReport,
	"lessongen_failures":    handleFailures,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "lessongen_generate",
		Description: "Generate every content variant of a lesson. Cached variants are reused; the rest are requested from the provider within rate and budget limits.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"lesson_id"},
			"properties": map[string]any{
				"lesson_id": stringProp("Lesson identifier, e.g. day1"),
				"client_id": stringProp("Client identity for rate limiting (optional)"),
			},
		},
	},
	{
		Name:        "lessongen_resume",
		Description: "Retry the variants of a lesson whose most recent attempt failed, or an explicit list of variant ids.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"lesson_id"},
			"properties": map[string]any{
				"lesson_id": stringProp("Lesson identifier"),
				"client_id": stringProp("Client identity for rate limiting (optional)"),
				"variant_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Variant ids to retry (optional, omit to use the attempt ledger)",
				},
			},
		},
	},
	{
		Name:        "lessongen_get_variant",
		Description: "Show one cached variant of a lesson.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"lesson_id", "variant_id"},
			"properties": map[string]any{
				"lesson_id":  stringProp("Lesson identifier"),
				"variant_id": stringProp("Variant id, e.g. age_8_fun_lesson_logic_question_1_A or fortune"),
			},
		},
	},
	{
		Name:        "lessongen_stats",
		Description: "Show generation and cache statistics since start.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "lessongen_budget",
		Description: "Show daily and monthly spend against the budget ceilings, with any threshold alerts.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "lessongen_rate_status",
		Description: "Show per-minute, per-hour and per-day quota usage for a client.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"client_id": stringProp("Client identity (optional, defaults to the generator's own)"),
			},
		},
	},
	{
		Name:        "lessongen_invalidate",
		Description: "Delete every cached variant of a lesson from both cache tiers.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"lesson_id"},
			"properties": map[string]any{
				"lesson_id": stringProp("Lesson identifier"),
			},
		},
	},
	{
		Name:        "lessongen_cost_report",
		Description: "Show recorded provider spend grouped by lesson and model.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"lesson_id": stringProp("Filter by lesson (optional)"),
			},
		},
	},
	{
		Name:        "lessongen_failures",
		Description: "List the variants of a lesson whose most recent attempt failed, with recent failure reasons.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"lesson_id"},
			"properties": map[string]any{
				"lesson_id": stringProp("Lesson identifier"),
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) {
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, v)
	}
}

func handleGenerate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args lessonArgs
	decodeArgs(rawArgs, &args)
	if args.LessonID == "" {
		return errorResult("lesson_id is required")
	}
	res, err := s.svc.Orchestrator.GenerateAll(ctx, args.LessonID, args.ClientID)
	if err != nil {
		return errorResult("Error generating lesson: " + err.Error())
	}
	return textResult(formatBatch(res))
}

func handleResume(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args resumeArgs
	decodeArgs(rawArgs, &args)
	if args.LessonID == "" {
		return errorResult("lesson_id is required")
	}
	res, err := s.svc.Orchestrator.ResumeFailed(ctx, args.LessonID, args.ClientID, args.VariantIDs)
	if errors.Is(err, orchestrator.ErrNoLedger) {
		return errorResult("Attempt ledger is not configured; pass variant_ids explicitly.")
	}
	if err != nil {
		return errorResult("Error resuming lesson: " + err.Error())
	}
	return textResult(formatBatch(res))
}

func handleGetVariant(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args variantArgs
	decodeArgs(rawArgs, &args)
	if args.LessonID == "" || args.VariantID == "" {
		return errorResult("lesson_id and variant_id are required")
	}
	res, err := s.svc.Orchestrator.GetVariant(ctx, args.LessonID, args.VariantID)
	if errors.Is(err, cache.ErrNotFound) {
		return textResult("Variant " + args.VariantID + " of " + args.LessonID + " is not cached.")
	}
	if err != nil {
		return errorResult("Error fetching variant: " + err.Error())
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errorResult("Error encoding variant: " + err.Error())
	}
	return textResult(string(data))
}

func handleStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatStats(s.svc.Orchestrator.Stats()))
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.svc.Budget == nil {
		return textResult("Budget enforcement is not configured.")
	}
	st, err := s.svc.Budget.CheckBudget(ctx)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	alerts, err := s.svc.Budget.Alerts(ctx)
	if err != nil {
		return errorResult("Error fetching budget alerts: " + err.Error())
	}
	return textResult(formatBudget(st, alerts))
}

func handleRateStatus(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.svc.Limiter == nil {
		return textResult("Rate limiting is not configured.")
	}
	var args clientArgs
	decodeArgs(rawArgs, &args)
	if args.ClientID == "" {
		args.ClientID = s.svc.Orchestrator.DefaultClientID()
	}
	st, err := s.svc.Limiter.Status(ctx, args.ClientID)
	if err != nil {
		return errorResult("Error fetching rate status: " + err.Error())
	}
	return textResult(formatRateStatus(st))
}

func handleInvalidate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args lessonArgs
	decodeArgs(rawArgs, &args)
	if args.LessonID == "" {
		return errorResult("lesson_id is required")
	}
	n, err := s.svc.Orchestrator.InvalidateLesson(ctx, args.LessonID)
	if err != nil {
		return errorResult("Error invalidating lesson: " + err.Error())
	}
	return textResult(formatInvalidated(args.LessonID, n))
}

func handleCostReport(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.svc.Tracker == nil {
		return textResult("Cost tracking is not configured.")
	}
	var args lessonArgs
	decodeArgs(rawArgs, &args)
	rows, err := s.svc.Tracker.Summary(ctx, args.LessonID)
	if err != nil {
		return errorResult("Error fetching cost report: " + err.Error())
	}
	return textResult(formatCostSummary(rows))
}

func handleFailures(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.svc.Attempts == nil {
		return textResult("Attempt ledger is not configured.")
	}
	var args lessonArgs
	decodeArgs(rawArgs, &args)
	if args.LessonID == "" {
		return errorResult("lesson_id is required")
	}
	ids, err := s.svc.Attempts.FailedVariants(ctx, args.LessonID)
	if err != nil {
		return errorResult("Error fetching failed variants: " + err.Error())
	}
	recent, err := s.svc.Attempts.Query(ctx, models.AttemptQueryOpts{
		LessonID: args.LessonID,
		Status:   models.AttemptFailed,
		Limit:    50,
	})
	if err != nil {
		return errorResult("Error searching attempts: " + err.Error())
	}
	return textResult(formatFailures(args.LessonID, ids, recent))
}
