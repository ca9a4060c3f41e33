package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/klasterhq/klaster/internal/adjust"
	"github.com/klasterhq/klaster/internal/api"
	"github.com/klasterhq/klaster/internal/lifecycle"
	"github.com/klasterhq/klaster/internal/models"
	"github.com/klasterhq/klaster/internal/quality"
	"github.com/klasterhq/klaster/internal/registry"
)

// Server wraps the klaster controller stack and exposes it as MCP tools.
type Server struct {
	client *api.Client
	reg    *registry.Registry
	lc     *lifecycle.Controller
	coord  *adjust.Coordinator
	scorer *quality.Scorer
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(client *api.Client, reg *registry.Registry, lc *lifecycle.Controller, coord *adjust.Coordinator) *Server {
	return &Server{
		client: client,
		reg:    reg,
		lc:     lc,
		coord:  coord,
		scorer: quality.NewScorer(),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("klaster", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.getSessionTool())
	srv.AddTool(s.renameClusterTool())
	srv.AddTool(s.mergeClustersTool())
	srv.AddTool(s.splitClusterTool())
	srv.AddTool(s.deleteClusterTool())
	srv.AddTool(s.sessionReportTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ensureActive makes the session the controller's active one and returns
// its detail. Read paths share the same route as mutations so every tool
// sees reconciled state.
func (s *Server) ensureActive(ctx context.Context, sessionID string) (*models.Session, error) {
	if s.reg.ActiveID() == sessionID {
		if active := s.reg.Active(); active != nil {
			return active, nil
		}
	}
	return s.lc.Select(ctx, sessionID)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// klaster_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("klaster_list_sessions",
		mcp.WithDescription("List all clustering sessions. Returns a JSON array with session_id, status, algorithm, cluster count, and creation time."),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.client.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	s.reg.SetSummaries(sessions)

	type sessionOut struct {
		SessionID   string `json:"session_id"`
		Status      string `json:"status"`
		Algorithm   string `json:"algorithm"`
		NumClusters *int   `json:"num_clusters"`
		CreatedAt   string `json:"created_at"`
		Filename    string `json:"original_filename"`
	}
	out := make([]sessionOut, len(sessions))
	for i, sum := range sessions {
		out[i] = sessionOut{
			SessionID:   sum.SessionID,
			Status:      string(sum.Status),
			Algorithm:   sum.Algorithm,
			NumClusters: sum.NumClusters,
			CreatedAt:   sum.CreatedAt.Format("2006-01-02 15:04:05"),
			Filename:    sum.OriginalFilename,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// klaster_get_session
func (s *Server) getSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("klaster_get_session",
		mcp.WithDescription("Get full detail of one clustering session including its clusters and adjustment history. Makes the session active for subsequent adjustment tools."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
	)
	return tool, s.handleGetSession
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	session, err := s.lc.Select(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch session: %v", err)), nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// klaster_rename_cluster
func (s *Server) renameClusterTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("klaster_rename_cluster",
		mcp.WithDescription("Set or clear the human label of a cluster. Pass an empty name to clear the label."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithString("cluster_id", mcp.Required(), mcp.Description("Cluster identifier within the session")),
		mcp.WithString("name", mcp.Description("New label; empty clears it")),
	)
	return tool, s.handleRenameCluster
}

func (s *Server) handleRenameCluster(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	clusterID, err := request.RequireString("cluster_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: cluster_id"), nil
	}
	name := request.GetString("name", "")

	if _, err := s.ensureActive(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load session: %v", err)), nil
	}
	if err := s.coord.Rename(ctx, clusterID, name); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rename failed: %v", err)), nil
	}
	return s.clustersResult(fmt.Sprintf("cluster %s renamed", clusterID))
}

// klaster_merge_clusters
func (s *Server) mergeClustersTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("klaster_merge_clusters",
		mcp.WithDescription("Merge two or more clusters into one new cluster. The new cluster gets a fresh server-assigned id."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithArray("cluster_ids", mcp.Required(), mcp.Description("At least two cluster identifiers to merge"), mcp.WithStringItems()),
	)
	return tool, s.handleMergeClusters
}

func (s *Server) handleMergeClusters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	clusterIDs := request.GetStringSlice("cluster_ids", nil)
	if len(clusterIDs) == 0 {
		return mcp.NewToolResultError("missing required parameter: cluster_ids"), nil
	}

	if _, err := s.ensureActive(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load session: %v", err)), nil
	}
	if err := s.coord.Merge(ctx, clusterIDs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("merge failed: %v", err)), nil
	}
	return s.clustersResult(fmt.Sprintf("merged %d clusters", len(clusterIDs)))
}

// klaster_split_cluster
func (s *Server) splitClusterTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("klaster_split_cluster",
		mcp.WithDescription("Split a cluster into N new clusters. The target must contain at least 2 points."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithString("cluster_id", mcp.Required(), mcp.Description("Cluster identifier to split")),
		mcp.WithNumber("num_splits", mcp.Description("Number of parts, minimum 2 (default 2)")),
	)
	return tool, s.handleSplitCluster
}

func (s *Server) handleSplitCluster(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	clusterID, err := request.RequireString("cluster_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: cluster_id"), nil
	}
	numSplits := request.GetInt("num_splits", 2)

	if _, err := s.ensureActive(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load session: %v", err)), nil
	}
	if err := s.coord.Split(ctx, clusterID, numSplits); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("split failed: %v", err)), nil
	}
	return s.clustersResult(fmt.Sprintf("cluster %s split into %d parts", clusterID, numSplits))
}

// klaster_delete_cluster
func (s *Server) deleteClusterTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("klaster_delete_cluster",
		mcp.WithDescription("Delete a cluster and redistribute its points to the nearest remaining clusters."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithString("cluster_id", mcp.Required(), mcp.Description("Cluster identifier to delete")),
	)
	return tool, s.handleDeleteCluster
}

func (s *Server) handleDeleteCluster(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	clusterID, err := request.RequireString("cluster_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: cluster_id"), nil
	}

	if _, err := s.ensureActive(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load session: %v", err)), nil
	}
	if err := s.coord.DeleteCluster(ctx, clusterID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return s.clustersResult(fmt.Sprintf("cluster %s deleted", clusterID))
}

// klaster_session_report
func (s *Server) sessionReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("klaster_session_report",
		mcp.WithDescription("Summarize a session: run facts, cluster breakdown, adjustment count, and the client-side quality score (0-100) with its components."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
	)
	return tool, s.handleSessionReport
}

func (s *Server) handleSessionReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	session, err := s.ensureActive(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load session: %v", err)), nil
	}

	score := s.scorer.Score(session)
	out := struct {
		SessionID   string           `json:"session_id"`
		Status      string           `json:"status"`
		Algorithm   string           `json:"algorithm"`
		Params      map[string]any   `json:"params,omitempty"`
		Clusters    []models.Cluster `json:"clusters"`
		Adjustments int              `json:"adjustments"`
		Quality     map[string]int   `json:"quality"`
	}{
		SessionID:   session.SessionID,
		Status:      string(session.Status),
		Algorithm:   session.Algorithm,
		Params:      session.Params,
		Clusters:    session.Clusters,
		Adjustments: len(session.Adjustments),
		Quality: map[string]int{
			"total":       score.Total,
			"balance":     score.Balance,
			"granularity": score.Granularity,
			"labeling":    score.Labeling,
			"curation":    score.Curation,
		},
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal score: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// clustersResult renders the post-reconciliation cluster collection, so a
// mutation's response always reflects the server's fresh ids.
func (s *Server) clustersResult(message string) (*mcp.CallToolResult, error) {
	session := s.reg.Active()
	out := struct {
		Message  string           `json:"message"`
		Status   string           `json:"status"`
		Clusters []models.Cluster `json:"clusters"`
	}{Message: message}
	if session != nil {
		out.Status = string(session.Status)
		out.Clusters = session.Clusters
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
