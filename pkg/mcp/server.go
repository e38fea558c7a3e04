package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/budget"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/orchestrator"
	"github.com/ilearnhow/lessongen/pkg/ratelimit"
	"github.com/ilearnhow/lessongen/pkg/tracker"
)

// AttemptLog provides read access to the attempt ledger.
type AttemptLog interface {
	Query(ctx context.Context, opts models.AttemptQueryOpts) ([]models.Attempt, error)
	FailedVariants(ctx context.Context, lessonID string) ([]string, error)
}

// Services are the components the tools operate on. Tracker and Attempts
// may be nil.
type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Budget       *budget.Enforcer
	Limiter      *ratelimit.Limiter
	Tracker      tracker.Tracker
	Attempts     AttemptLog
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	svc     Services
	version string
	log     zerolog.Logger
}

// New creates a new MCP Server.
func New(svc Services, version string, log zerolog.Logger) *Server {
	return &Server{
		svc:     svc,
		version: version,
		log:     log.With().Str("component", "mcp").Logger(),
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, *rpcError(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonrpcVersion {
		return rpcError(req.ID, CodeInvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
	}
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return result(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      ServerInfo{Name: "lessongen", Version: s.version},
		Capabilities:    map[string]any{"tools": map[string]any{}},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.log.Debug().Str("tool", params.Name).Msg("tool call")
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}
