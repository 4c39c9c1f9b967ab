// Package mcp exposes retrieval and question answering to agents over the
// Model Context Protocol, JSON-RPC 2.0 on stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nickcecere/docrag/internal/rag"
)

// Request is a JSON-RPC 2.0 request or, without an id, a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	ErrorCodeParse          = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternal       = -32603
)

// supportedVersions lists protocol revisions the server speaks, newest first.
var supportedVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// negotiateVersion echoes the client's revision when supported and offers
// the newest one otherwise.
func negotiateVersion(requested string) string {
	if slices.Contains(supportedVersions, requested) {
		return requested
	}
	return supportedVersions[0]
}

type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	} `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	Capabilities    struct {
		Tools struct {
			ListChanged bool `json:"listChanged"`
		} `json:"tools"`
	} `json:"capabilities"`
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
	Instructions string `json:"instructions,omitempty"`
}

// Tool describes one callable tool in tools/list.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	InputSchema JSONSchema `json:"inputSchema"`
}

type JSONSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Minimum     *int   `json:"minimum,omitempty"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult carries a text rendering for the model and, for clients on
// newer revisions, the same data as structured content.
type CallToolResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Hit is one retrieved fragment in docrag_retrieve output.
type Hit struct {
	Rank   int     `json:"rank"`
	Source string  `json:"source"`
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// RetrieveOutput is the structured result of docrag_retrieve.
type RetrieveOutput struct {
	Query string `json:"query"`
	K     int    `json:"k"`
	Hits  []Hit  `json:"hits"`
}

func newRetrieveOutput(query string, k int, results []rag.Result) RetrieveOutput {
	out := RetrieveOutput{Query: query, K: k, Hits: make([]Hit, len(results))}
	for i, r := range results {
		out.Hits[i] = Hit{
			Rank:   i + 1,
			Source: r.Source(),
			Index:  r.Fragment.Index,
			Score:  r.Score(),
			Text:   r.Text(),
		}
	}
	return out
}

// AnswerOutput is the structured result of docrag_answer.
type AnswerOutput struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// StatusOutput is the structured result of docrag_status.
type StatusOutput struct {
	Exists    bool       `json:"exists"`
	Path      string     `json:"path"`
	Name      string     `json:"name,omitempty"`
	Fragments int        `json:"fragments"`
	Dimension int        `json:"dimension"`
	Model     string     `json:"model,omitempty"`
	BuiltAt   *time.Time `json:"builtAt,omitempty"`
}

// ToolError classifies a failed tool call so agents can tell a bad argument
// from a store that needs rebuilding or an unreachable provider.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errorKind maps docrag errors onto the ToolError kinds.
func errorKind(err error) string {
	var ce *rag.ConfigError
	var pe *rag.ProviderError
	switch {
	case errors.As(err, &ce):
		return "invalid_argument"
	case errors.Is(err, rag.ErrStoreNotFound):
		return "store_not_found"
	case errors.Is(err, rag.ErrStoreCorrupt):
		return "store_corrupt"
	case rag.IsIntegrityError(err):
		return "integrity"
	case errors.As(err, &pe):
		return "provider"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func textResult(text string, structured any) *CallToolResult {
	return &CallToolResult{
		Content:           []ContentBlock{{Type: "text", Text: text}},
		StructuredContent: structured,
	}
}

// errorResult reports err as "Error: <what>: <err>".
func errorResult(what string, err error) *CallToolResult {
	text := "Error: " + err.Error()
	if what != "" {
		text = fmt.Sprintf("Error: %s: %v", what, err)
	}
	return &CallToolResult{
		Content:           []ContentBlock{{Type: "text", Text: text}},
		StructuredContent: ToolError{Kind: errorKind(err), Message: err.Error()},
		IsError:           true,
	}
}
