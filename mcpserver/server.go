package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/config"
	"github.com/isdmx/scriptbox/executor"
	"github.com/isdmx/scriptbox/value"
)

// Runner executes script requests. *executor.Executor implements it.
type Runner interface {
	Run(ctx context.Context, req executor.Request) executor.Outcome
	Backend() string
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	runner    Runner
	mcpServer *server.MCPServer

	mu         sync.Mutex
	httpServer *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, runner Runner) (*MCPServer, error) {
	if runner == nil {
		return nil, errors.New("script runner is required")
	}
	s := &MCPServer{
		config: cfg,
		logger: logger,
		runner: runner,
	}

	policy := cfg.Policy()
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("executor.backend", runner.Backend()),
		zap.Int("executor.cache_size", cfg.Executor.CacheSize),
		zap.Strings("executor.disabled_symbols", cfg.Executor.DisabledSymbols),
		zap.Uint64("limits.max_operations", policy.MaxOperations),
		zap.Duration("limits.max_duration", policy.MaxDuration),
		zap.Int("limits.max_string_len", policy.MaxStringLen),
		zap.Int("limits.max_array_size", policy.MaxArraySize),
		zap.Int64("limits.memory_limit_bytes", policy.MemoryLimitBytes),
		zap.Bool("hostfunctions.kv.enabled", cfg.HostFunctions.KV.Enabled),
		zap.Bool("hostfunctions.log.enabled", cfg.HostFunctions.Log.Enabled),
	)

	s.mcpServer = server.NewMCPServer("scriptbox", "A sandboxed script execution server")

	s.registerExecuteScriptTool()
	s.registerCallFunctionTool()

	return s, nil
}

func (s *MCPServer) registerExecuteScriptTool() {
	tool := mcp.Tool{
		Name:        "execute_script",
		Description: fmt.Sprintf("Evaluate a %s script under resource limits and return the value of its final expression", s.runner.Backend()),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"script": map[string]any{
					"type":        "string",
					"description": "Script source",
				},
			},
			Required: []string{"script"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteScript)
}

func (s *MCPServer) registerCallFunctionTool() {
	tool := mcp.Tool{
		Name:        "call_function",
		Description: fmt.Sprintf("Load a %s script and call one of its functions under resource limits", s.runner.Backend()),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"script": map[string]any{
					"type":        "string",
					"description": "Script source defining the entry point",
				},
				"entry_point": map[string]any{
					"type":        "string",
					"description": "Name of the function to call",
				},
				"arguments": map[string]any{
					"type":        "array",
					"description": "Arguments passed to the entry point as JSON values",
				},
			},
			Required: []string{"script", "entry_point"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleCallFunction)
}

func (s *MCPServer) handleExecuteScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	script, err := request.RequireString("script")
	if err != nil {
		return nil, fmt.Errorf("script parameter is required: %w", err)
	}

	return s.run(ctx, executor.Request{Script: script})
}

func (s *MCPServer) handleCallFunction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	script, err := request.RequireString("script")
	if err != nil {
		return nil, fmt.Errorf("script parameter is required: %w", err)
	}

	entry, err := request.RequireString("entry_point")
	if err != nil {
		return nil, fmt.Errorf("entry_point parameter is required: %w", err)
	}

	args, err := arguments(request.GetArguments()["arguments"])
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	return s.run(ctx, executor.Request{Script: script, EntryPoint: entry, Args: args})
}

// arguments accepts a JSON array or a string holding one.
func arguments(raw any) ([]value.Value, error) {
	switch raw := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if raw == "" {
			return nil, nil
		}
		v, err := value.ParseJSON([]byte(raw))
		if err != nil {
			return nil, err
		}
		elems, ok := v.AsArray()
		if !ok {
			return nil, fmt.Errorf("expected a JSON array, got %s", v.Kind())
		}
		return elems, nil
	case []any:
		args := make([]value.Value, 0, len(raw))
		for i, a := range raw {
			v, err := value.FromAny(a)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args = append(args, v)
		}
		return args, nil
	default:
		return nil, fmt.Errorf("expected an array, got %T", raw)
	}
}

// Result is the JSON document returned by both tools.
type Result struct {
	OK         bool         `json:"ok"`
	Value      *value.Value `json:"value,omitempty"`
	Text       string       `json:"text,omitempty"`
	Output     string       `json:"output,omitempty"`
	Error      *ErrorResult `json:"error,omitempty"`
	SessionID  string       `json:"session_id"`
	Operations uint64       `json:"operations"`
	DurationMS int64        `json:"duration_ms"`
}

// ErrorResult describes a failed execution.
type ErrorResult struct {
	Kind    string `json:"kind"`
	Limit   string `json:"limit,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewResult converts an outcome to its JSON document.
func NewResult(out executor.Outcome) Result {
	res := Result{
		OK:         out.OK(),
		Output:     out.Output,
		SessionID:  out.SessionID,
		Operations: out.Operations,
		DurationMS: out.Duration.Milliseconds(),
	}
	if out.OK() {
		v := out.Value
		res.Value = &v
		res.Text = out.Text
		return res
	}
	res.Error = &ErrorResult{
		Kind:    out.Err.Kind.String(),
		Limit:   out.Err.Limit.String(),
		Message: out.Err.Message,
		Line:    out.Err.Line,
		Column:  out.Err.Column,
	}
	return res
}

func (s *MCPServer) run(ctx context.Context, req executor.Request) (*mcp.CallToolResult, error) {
	s.logger.Info("script execution requested",
		zap.String("entry_point", req.EntryPoint),
		zap.Int("script_bytes", len(req.Script)),
		zap.Int("arguments", len(req.Args)))

	out := s.runner.Run(ctx, req)
	body, err := json.Marshal(NewResult(out))
	if err != nil {
		s.logger.Error("failed to encode result", zap.Error(err), zap.String("session_id", out.SessionID))
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	s.logger.Info("script execution completed",
		zap.String("session_id", out.SessionID),
		zap.Bool("ok", out.OK()),
		zap.Uint64("operations", out.Operations),
		zap.Duration("duration", out.Duration))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
		IsError: !out.OK(),
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	err := httpServer.Start(fmt.Sprintf(":%d", port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP transport if it is running.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
