package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/llm"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
)

// ServerName is the name of this MCP server.
const ServerName = "docrag"

// ServerVersion is reported in the initialize response.
var ServerVersion = "dev"

// Retriever returns ranked fragments for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]rag.Result, error)
}

// Answerer answers a query from retrieved fragments.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (*llm.QAResult, error)
}

// Server is the MCP server for docrag.
type Server struct {
	manager   *store.Manager
	retriever Retriever
	answerer  Answerer
	indexer   *indexer.Indexer
	buildOpts indexer.BuildOptions
	topK      int

	// Stdin/stdout for communication
	reader *bufio.Reader
	writer io.Writer

	// State
	initialized bool
}

// Option configures the server.
type Option func(*Server)

// WithIO replaces stdin and stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(s *Server) {
		s.reader = bufio.NewReader(r)
		s.writer = w
	}
}

// WithAnswerer enables the docrag_answer tool.
func WithAnswerer(a Answerer) Option {
	return func(s *Server) {
		s.answerer = a
	}
}

// WithIndexer enables the docrag_index tool for the corpus in opts.
func WithIndexer(idx *indexer.Indexer, opts indexer.BuildOptions) Option {
	return func(s *Server) {
		s.indexer = idx
		s.buildOpts = opts
	}
}

// NewServer creates a new MCP server over the store in m.
func NewServer(m *store.Manager, r Retriever, topK int, opts ...Option) *Server {
	s := &Server{
		manager:   m,
		retriever: r,
		topK:      topK,
		reader:    bufio.NewReader(os.Stdin),
		writer:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the MCP server and processes requests until the context is
// cancelled or the input ends.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				log.Info("MCP server received EOF, shutting down")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}

		s.handleRequest(ctx, req)
	}
}

// handleRequest processes a single MCP request.
func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	if req.JSONRPC != "2.0" {
		s.sendError(req.ID, ErrorCodeInvalidRequest, "Invalid request", "jsonrpc must be \"2.0\"")
		return
	}

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		if req.ID == nil {
			// unknown notifications get no response
			return
		}
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		var pe *paramsError
		if errors.As(err, &pe) {
			s.sendError(req.ID, ErrorCodeInvalidParams, "Invalid params", err.Error())
			return
		}
		s.sendError(req.ID, ErrorCodeInternal, "Internal error", err.Error())
		return
	}

	s.sendResult(req.ID, result)
}

type paramsError struct{ err error }

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &paramsError{fmt.Errorf("invalid params: %w", err)}
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	res := &InitializeResult{
		ProtocolVersion: negotiateVersion(p.ProtocolVersion),
		Instructions:    "Answers come only from the indexed documents. Call docrag_retrieve for fragments with sources, docrag_status to see what is indexed.",
	}
	res.ServerInfo.Name = ServerName
	res.ServerInfo.Version = ServerVersion
	return res, nil
}

// handleListTools returns the list of available tools.
func (s *Server) handleListTools() *ListToolsResult {
	one := 1
	kProp := Property{
		Type:        "integer",
		Description: "Number of fragments to retrieve",
		Default:     s.topK,
		Minimum:     &one,
	}

	tools := []Tool{
		{
			Name:        "docrag_retrieve",
			Description: "Retrieve the document fragments most relevant to a natural-language query, with their sources and similarity scores.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "The question or search query in natural language",
					},
					"k": kProp,
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "docrag_status",
			Description: "Report the indexed store: location, fragment count, vector dimension, embedding model and build time.",
			InputSchema: JSONSchema{Type: "object"},
		},
	}

	if s.answerer != nil {
		tools = append(tools, Tool{
			Name:        "docrag_answer",
			Description: "Answer a question using only the indexed documents. Returns the answer and the cited sources.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "The question in natural language",
					},
					"k": kProp,
				},
				Required: []string{"query"},
			},
		})
	}

	if s.indexer != nil {
		tools = append(tools, Tool{
			Name:        "docrag_index",
			Description: "Bring the store up to date with the document corpus, rebuilding it if documents changed.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"force": {
						Type:        "boolean",
						Description: "Rebuild even if the store is current",
						Default:     false,
					},
				},
			},
		})
	}

	return &ListToolsResult{Tools: tools}
}

// handleCallTool executes a tool and returns the result.
func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &paramsError{fmt.Errorf("invalid params: %w", err)}
	}

	log.Debug("Calling tool", "name", p.Name, "arguments", p.Arguments)

	switch {
	case p.Name == "docrag_retrieve":
		return s.toolRetrieve(ctx, p.Arguments), nil
	case p.Name == "docrag_answer" && s.answerer != nil:
		return s.toolAnswer(ctx, p.Arguments), nil
	case p.Name == "docrag_status":
		return s.toolStatus(), nil
	case p.Name == "docrag_index" && s.indexer != nil:
		return s.toolIndex(ctx, p.Arguments), nil
	default:
		res := textResult(fmt.Sprintf("Unknown tool: %s", p.Name), ToolError{Kind: "unknown_tool", Message: p.Name})
		res.IsError = true
		return res, nil
	}
}

// queryArgs reads the query and k arguments.
func (s *Server) queryArgs(args map[string]any) (string, int, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", 0, &rag.ConfigError{Field: "query", Reason: "is required"}
	}

	k := s.topK
	switch v := args["k"].(type) {
	case float64:
		k = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return "", 0, &rag.ConfigError{Field: "k", Reason: "must be an integer"}
		}
		k = parsed
	}
	if k < 1 {
		return "", 0, &rag.ConfigError{Field: "k", Reason: fmt.Sprintf("must be at least 1, got %d", k)}
	}
	return query, k, nil
}

// toolRetrieve returns the top fragments for a query.
func (s *Server) toolRetrieve(ctx context.Context, args map[string]any) *CallToolResult {
	query, k, err := s.queryArgs(args)
	if err != nil {
		return errorResult("", err)
	}

	results, err := s.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return errorResult("retrieval failed", err)
	}

	out := newRetrieveOutput(query, k, results)
	if len(results) == 0 {
		return textResult("No relevant fragments found.", out)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d fragments:\n\n", len(results))
	for _, h := range out.Hits {
		fmt.Fprintf(&sb, "[Fragment %d | Source: %s] (fragment %d of source, score %.4f)\n",
			h.Rank, h.Source, h.Index, h.Score)
		sb.WriteString(h.Text)
		sb.WriteString("\n\n")
	}
	return textResult(sb.String(), out)
}

// toolAnswer answers a question from the store.
func (s *Server) toolAnswer(ctx context.Context, args map[string]any) *CallToolResult {
	query, k, err := s.queryArgs(args)
	if err != nil {
		return errorResult("", err)
	}

	res, err := s.answerer.Answer(ctx, query, k)
	if err != nil {
		return errorResult("answer failed", err)
	}

	var sb strings.Builder
	sb.WriteString(res.Answer)
	if len(res.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, src := range res.Sources {
			sb.WriteString("- ")
			sb.WriteString(src)
			sb.WriteString("\n")
		}
	}
	return textResult(sb.String(), AnswerOutput{Answer: res.Answer, Sources: res.Sources})
}

// toolStatus describes the persisted store.
func (s *Server) toolStatus() *CallToolResult {
	out := StatusOutput{Path: s.manager.Path()}

	meta, err := s.manager.Meta()
	if errors.Is(err, rag.ErrStoreNotFound) {
		return textResult(fmt.Sprintf("No store at %s. Run `docrag index` first.", out.Path), out)
	}
	if err != nil {
		return errorResult("", err)
	}

	out.Exists = true
	out.Name = meta.Name
	out.Fragments = meta.Count
	out.Dimension = meta.Dimension
	out.Model = meta.Model

	var sb strings.Builder
	fmt.Fprintf(&sb, "Store: %s\n", meta.Name)
	fmt.Fprintf(&sb, "Path: %s\n", out.Path)
	fmt.Fprintf(&sb, "Fragments: %d\n", meta.Count)
	fmt.Fprintf(&sb, "Dimension: %d\n", meta.Dimension)
	fmt.Fprintf(&sb, "Model: %s\n", meta.Model)
	if !meta.CreatedAt.IsZero() {
		built := meta.CreatedAt
		out.BuiltAt = &built
		fmt.Fprintf(&sb, "Built: %s\n", built.Format(time.RFC3339))
	}
	return textResult(sb.String(), out)
}

// toolIndex brings the store up to date.
func (s *Server) toolIndex(ctx context.Context, args map[string]any) *CallToolResult {
	opts := s.buildOpts
	if force, ok := args["force"].(bool); ok {
		opts.Force = force
	}

	res, err := s.indexer.Ensure(ctx, s.manager, opts)
	if err != nil {
		return errorResult("indexing failed", err)
	}

	if !res.Rebuilt {
		return textResult(fmt.Sprintf("Store is up to date: %d fragments", res.Store.Count()), nil)
	}
	return textResult(fmt.Sprintf("Rebuilt store (%s): %d fragments from %d sources",
		res.Reason, res.Store.Count(), len(res.Store.Sources())), nil)
}

// sendResult sends a successful response.
func (s *Server) sendResult(id any, result any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.send(resp)
}

// sendError sends an error response.
func (s *Server) sendError(id any, code int, message, data string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	s.send(resp)
}

// send writes a response to stdout.
func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}
