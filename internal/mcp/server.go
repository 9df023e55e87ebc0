// Package mcp exposes the content pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"contentpay/backend/internal/auth"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/pipeline"
	"contentpay/backend/pkg/models"
)

const (
	serverName    = "ContentPay"
	serverVersion = "1.0.0"
)

// Server holds the MCP server and the pipeline its tools call into.
type Server struct {
	mcpServer *server.MCPServer
	svc       *pipeline.Service
	logger    *logging.Logger
}

// GenerateInput is the argument set of the generate_content tool.
type GenerateInput struct {
	Prompt      string `json:"prompt"`
	ContentType string `json:"contentType"`
	UserID      string `json:"userId"`
	Model       string `json:"model"`
}

// OwnershipInput names a content item and a claimed owner.
type OwnershipInput struct {
	ContentID string `json:"contentId"`
	Owner     string `json:"owner"`
}

type balanceResult struct {
	UserID  string       `json:"userId"`
	Balance models.Money `json:"balance"`
}

type verifyResult struct {
	ContentID string `json:"contentId"`
	Owner     string `json:"owner"`
	Verified  bool   `json:"verified"`
}

// NewServer creates a Server with all tools registered.
func NewServer(svc *pipeline.Service, logger *logging.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(true),
		),
		svc:    svc,
		logger: logger.With("component", "mcp"),
	}

	s.registerTools()
	return s
}

// GetMCPServer returns the underlying server for mounting on a transport.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_content",
			mcp.WithDescription("Pay for and generate a content item, registering the caller as its owner"),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What to generate")),
			mcp.WithString("contentType", mcp.Required(), mcp.Description("Content type to generate"),
				mcp.Enum("text-generation", "image-generation", "audio-generation", "video-generation")),
			mcp.WithString("userId", mcp.Required(), mcp.Description("The paying user")),
			mcp.WithString("model", mcp.Description("Model to use; defaults per content type")),
		),
		s.handleGenerate,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_balance",
			mcp.WithDescription("Get a user's prepaid balance"),
			mcp.WithString("userId", mcp.Required(), mcp.Description("The user to look up")),
		),
		s.handleGetBalance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"verify_ownership",
			mcp.WithDescription("Check whether a user currently owns a content item"),
			mcp.WithString("contentId", mcp.Required(), mcp.Description("The content id")),
			mcp.WithString("owner", mcp.Required(), mcp.Description("The claimed owner")),
		),
		s.handleVerifyOwnership,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"ownership_proof",
			mcp.WithDescription("Issue an ownership proof for the current owner of a content item"),
			mcp.WithString("contentId", mcp.Required(), mcp.Description("The content id")),
			mcp.WithString("owner", mcp.Required(), mcp.Description("The claimed owner")),
		),
		s.handleOwnershipProof,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"content_details",
			mcp.WithDescription("Get a content record with its ownership history and metadata"),
			mcp.WithString("contentId", mcp.Required(), mcp.Description("The content id")),
		),
		s.handleContentDetails,
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to encode result", err), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input GenerateInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid generate_content arguments", err), nil
	}
	if err := auth.Authorize(ctx, input.UserID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, err := s.svc.Generate(ctx, models.GenerateRequest{
		Prompt:      input.Prompt,
		ContentType: input.ContentType,
		UserID:      input.UserID,
		Model:       input.Model,
	})
	if err != nil {
		s.logger.Warn("Tool call failed", "tool", "generate_content", "error", err.Error())
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate content: %v", err)), nil
	}
	return jsonResult(job)
}

func (s *Server) handleGetBalance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("userId")
	if err != nil || userID == "" {
		return mcp.NewToolResultError("Missing required parameter: userId"), nil
	}
	if err := auth.Authorize(ctx, userID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	balance, err := s.svc.Ledger().GetBalance(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}
	return jsonResult(balanceResult{UserID: userID, Balance: balance})
}

func bindOwnership(request mcp.CallToolRequest) (OwnershipInput, *mcp.CallToolResult) {
	var input OwnershipInput
	if err := request.BindArguments(&input); err != nil {
		return input, mcp.NewToolResultErrorFromErr("invalid arguments", err)
	}
	if input.ContentID == "" || input.Owner == "" {
		return input, mcp.NewToolResultError("Missing required parameters: contentId, owner")
	}
	return input, nil
}

func (s *Server) handleVerifyOwnership(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, bad := bindOwnership(request)
	if bad != nil {
		return bad, nil
	}

	ok := s.svc.Registry().VerifyOwnership(ctx, input.ContentID, input.Owner)
	return jsonResult(verifyResult{ContentID: input.ContentID, Owner: input.Owner, Verified: ok})
}

func (s *Server) handleOwnershipProof(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, bad := bindOwnership(request)
	if bad != nil {
		return bad, nil
	}

	proof, err := s.svc.Registry().GenerateOwnershipProof(ctx, input.ContentID, input.Owner)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Ownership proof not available: %v", err)), nil
	}
	return jsonResult(proof)
}

func (s *Server) handleContentDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentID, err := request.RequireString("contentId")
	if err != nil || contentID == "" {
		return mcp.NewToolResultError("Missing required parameter: contentId"), nil
	}

	details, err := s.svc.Registry().GetContentDetails(ctx, contentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get content: %v", err)), nil
	}
	return jsonResult(details)
}

// MountHTTPHandlers serves streamable HTTP on /mcp and the SSE transport on
// /mcp/sse and /mcp/message.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	streamable := server.NewStreamableHTTPServer(mcpServer, server.WithEndpointPath("/mcp"))
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.Handle("/mcp", streamable)
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
