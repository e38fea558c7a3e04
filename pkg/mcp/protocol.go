package mcp

import "github.com/goccy/go-json"

// Wire types for the lessongen stdio tool server: JSON-RPC 2.0 framing plus
// the subset of MCP (initialize, tools/list, tools/call) the tools need.

const (
	jsonrpcVersion = "2.0"
	// protocolVersion is the MCP revision lessongen speaks.
	protocolVersion = "2024-11-05"
)

// JSON-RPC error codes returned by the server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// Request is one line read from the client.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one line written back. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a protocol-level failure. Tool failures are reported inside a
// ToolCallResult instead.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func result(id json.RawMessage, v any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Result: v}
}

func rpcError(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: msg}}
}

// InitializeResult answers initialize.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
	Capabilities    any        `json:"capabilities"`
}

// ServerInfo names the lessongen build.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDefinition is one lessongen_* tool with its JSON schema.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ToolsListResult answers tools/list.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolCallParams selects a tool and carries its raw arguments.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult holds the rendered text of a tool call.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is a text block; lessongen never returns other block types.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
