package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/klasterhq/klaster/internal/models"
)

// Adjustment actions understood by the adjust endpoint.
const (
	ActionRename = "RENAME"
	ActionMerge  = "MERGE_CLUSTERS"
	ActionSplit  = "SPLIT_CLUSTER"
)

// StartJob is the input of the start endpoint: an embeddings file, the
// algorithm to run, its params, and an optional image archive for contact
// sheets.
type StartJob struct {
	EmbeddingFile     io.Reader
	EmbeddingFilename string
	Algorithm         string
	Params            map[string]any
	ImageArchive      io.Reader // optional
	ArchiveFilename   string
}

// StartClustering submits a new clustering job and returns the assigned
// session id. The server assigns status STARTED before any poll happens.
func (c *Client) StartClustering(ctx context.Context, job StartJob) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("embeddingFile", job.EmbeddingFilename)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(fw, job.EmbeddingFile); err != nil {
		return "", fmt.Errorf("copy embeddings file: %w", err)
	}

	if err := mw.WriteField("algorithm", job.Algorithm); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	params := job.Params
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	if err := mw.WriteField("params", string(paramsJSON)); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	if job.ImageArchive != nil {
		aw, err := mw.CreateFormFile("imageArchive", job.ArchiveFilename)
		if err != nil {
			return "", fmt.Errorf("build multipart body: %w", err)
		}
		if _, err := io.Copy(aw, job.ImageArchive); err != nil {
			return "", fmt.Errorf("copy image archive: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/clustering/start", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("server returned no session_id")
	}
	return resp.SessionID, nil
}

// ListSessions returns summaries of all sessions owned by the current user,
// newest first.
func (c *Client) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	var sessions []models.SessionSummary
	if err := c.getJSON(ctx, "/api/clustering/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches full session detail including the cluster collection
// and the adjustment log.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	path := "/api/clustering/results/" + url.PathEscape(sessionID)
	if err := c.getJSON(ctx, path, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// AdjustRequest is the body of the adjust endpoint. Action selects which
// of the optional fields the server reads.
type AdjustRequest struct {
	Action          string   `json:"action"`
	ClusterID       string   `json:"cluster_id,omitempty"`
	NewName         *string  `json:"new_name,omitempty"`
	ClusterIDsMerge []string `json:"cluster_ids_to_merge,omitempty"`
	ClusterIDSplit  string   `json:"cluster_id_to_split,omitempty"`
	NumSplits       int      `json:"num_splits,omitempty"`
}

// AdjustResult is the minimal success payload of a mutation. It is
// advisory only: structural mutations change cluster ids unpredictably, so
// callers reconcile by refetching the session rather than patching from
// these fields.
type AdjustResult struct {
	Message         string          `json:"message"`
	Cluster         *models.Cluster `json:"cluster,omitempty"`
	NewClusterLabel string          `json:"new_cluster_label,omitempty"`
}

// Adjust posts a rename/merge/split mutation for the session.
func (c *Client) Adjust(ctx context.Context, sessionID string, req AdjustRequest) (*AdjustResult, error) {
	var result AdjustResult
	path := "/api/clustering/results/" + url.PathEscape(sessionID) + "/adjust"
	if err := c.postJSON(ctx, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteCluster removes a cluster and lets the server redistribute its
// points to the nearest remaining clusters. Returns the server's message.
func (c *Client) DeleteCluster(ctx context.Context, sessionID, clusterID string) (string, error) {
	path := "/api/clustering/results/" + url.PathEscape(sessionID) + "/cluster/" + url.PathEscape(clusterID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ExportKind selects one of the three export endpoints.
type ExportKind string

const (
	ExportAssignments    ExportKind = "assignments.csv"
	ExportClusterSummary ExportKind = "cluster_summary.json"
	ExportSessionSummary ExportKind = "session_summary.json"
)

// Export streams an export file for the session into w and returns the
// number of bytes written.
func (c *Client) Export(ctx context.Context, sessionID string, kind ExportKind, w io.Writer) (int64, error) {
	path := "/api/clustering/export/" + url.PathEscape(sessionID) + "/" + string(kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request export %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
			return 0, ErrUnauthorized
		case http.StatusNotFound:
			return 0, ErrNotFound
		}
		return 0, &APIError{StatusCode: resp.StatusCode, Message: eb.text()}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("stream export %s: %w", kind, err)
	}
	return n, nil
}
