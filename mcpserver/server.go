package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/judge"
)

// Judge is the part of the judge exposed as tools
type Judge interface {
	RunCode(ctx context.Context, code, language, problemID string) ([]domain.TestResult, error)
	SubmitSolution(ctx context.Context, userID, problemID, code, language string) (*domain.Submission, error)
	GetUserSubmissions(ctx context.Context, userID, problemID string) ([]domain.Submission, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	judge     Judge
	languages []string
	mcpServer *server.MCPServer

	httpServer *server.StreamableHTTPServer
}

// New creates a new MCPServer. languages populates the enum of the language argument.
func New(cfg *config.Config, logger *zap.Logger, j Judge, languages []string) *MCPServer {
	s := &MCPServer{
		config:    cfg,
		logger:    logger,
		judge:     j,
		languages: languages,
	}

	logger.Info("mcp server configured",
		zap.String("mcp.transport", cfg.MCP.Transport),
		zap.Int("mcp.http_port", cfg.MCP.HTTPPort),
		zap.Strings("languages", languages),
	)

	s.mcpServer = server.NewMCPServer("codejudge", "1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.mcpServer.AddTool(s.runCodeTool(), s.handleRunCode)
	s.mcpServer.AddTool(s.submitSolutionTool(), s.handleSubmitSolution)
	s.mcpServer.AddTool(listSubmissionsTool(), s.handleListSubmissions)

	if cfg.MCP.Transport == "http" {
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	}

	return s
}

func (s *MCPServer) languageArg() mcp.ToolOption {
	return mcp.WithString("language",
		mcp.Required(),
		mcp.Description("Language of the source code"),
		mcp.Enum(s.languages...),
	)
}

func (s *MCPServer) runCodeTool() mcp.Tool {
	return mcp.NewTool("run_code",
		mcp.WithDescription("Run source code against the visible test cases of a problem without recording a submission"),
		mcp.WithString("problem_id", mcp.Required(), mcp.Description("Problem to run against")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code")),
		s.languageArg(),
	)
}

func (s *MCPServer) submitSolutionTool() mcp.Tool {
	return mcp.NewTool("submit_solution",
		mcp.WithDescription("Judge source code against every test case of a problem and record the submission for a user"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User the submission is recorded for")),
		mcp.WithString("problem_id", mcp.Required(), mcp.Description("Problem to judge against")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code")),
		s.languageArg(),
	)
}

func listSubmissionsTool() mcp.Tool {
	return mcp.NewTool("list_submissions",
		mcp.WithDescription("List a user's submissions for a problem, newest first"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User whose submissions are listed")),
		mcp.WithString("problem_id", mcp.Required(), mcp.Description("Problem the submissions belong to")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// requireStrings extracts required string arguments in order
func requireStrings(request mcp.CallToolRequest, names ...string) ([]string, error) {
	values := make([]string, 0, len(names))
	for _, name := range names {
		v, err := request.RequireString(name)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (s *MCPServer) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(request, "problem_id", "code", "language")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	problemID, code, language := args[0], args[1], args[2]

	log := s.logger.With(zap.String("tool", "run_code"), zap.String("problem_id", problemID), zap.String("language", language))
	log.Info("code run requested")

	results, err := s.judge.RunCode(ctx, code, language, problemID)
	if err != nil {
		return s.toolError(log, "run failed", err), nil
	}

	return jsonResult(map[string]any{"results": results})
}

func (s *MCPServer) handleSubmitSolution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(request, "user_id", "problem_id", "code", "language")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID, problemID, code, language := args[0], args[1], args[2], args[3]

	log := s.logger.With(zap.String("tool", "submit_solution"), zap.String("user_id", userID),
		zap.String("problem_id", problemID), zap.String("language", language))
	log.Info("submission requested")

	sub, err := s.judge.SubmitSolution(ctx, userID, problemID, code, language)
	if err != nil {
		return s.toolError(log, "submission failed", err), nil
	}

	log.Info("submission judged", zap.String("submission_id", sub.ID), zap.String("status", string(sub.Status)), zap.Int("score", sub.Score))
	return jsonResult(sub)
}

func (s *MCPServer) handleListSubmissions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(request, "user_id", "problem_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	subs, err := s.judge.GetUserSubmissions(ctx, args[0], args[1])
	if err != nil {
		return s.toolError(s.logger.With(zap.String("tool", "list_submissions")), "listing failed", err), nil
	}

	return jsonResult(subs)
}

// toolError reports err to the client as a tool-level failure. Caller
// errors are returned verbatim, anything else is logged and summarized.
func (s *MCPServer) toolError(log *zap.Logger, msg string, err error) *mcp.CallToolResult {
	if judge.IsCallerError(err) {
		log.Debug(msg, zap.Error(err))
		return mcp.NewToolResultError(err.Error())
	}
	log.Error(msg, zap.Error(err))
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return mcp.NewToolResultError(msg + ": store unavailable")
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

// ServeStdio serves the protocol on the given streams until ctx is done
func (s *MCPServer) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server on stdio")
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, in, out)
}

// ServeHTTP serves the streamable HTTP transport on mcp.http_port. It
// returns nil once Shutdown completes.
func (s *MCPServer) ServeHTTP() error {
	if s.httpServer == nil {
		return fmt.Errorf("mcp transport is %q, not http", s.config.MCP.Transport)
	}
	port := s.config.MCP.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	if err := s.httpServer.Start(fmt.Sprintf(":%d", port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP transport if it is running
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
