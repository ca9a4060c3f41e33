package models

import (
	"encoding/json"
	"time"
)

// SessionSummary is one row of the session list endpoint.
type SessionSummary struct {
	SessionID        string         `json:"session_id"`
	CreatedAt        time.Time      `json:"created_at"`
	Status           SessionStatus  `json:"status"`
	Algorithm        string         `json:"algorithm"`
	Params           map[string]any `json:"params"`
	NumClusters      *int           `json:"num_clusters"`
	ResultMessage    string         `json:"result_message"`
	OriginalFilename string         `json:"original_filename"`
}

// Session is the full detail of one clustering run, as returned by the
// results endpoint. The clusters collection is replaced wholesale on every
// fetch; it is never patched field-by-field from a mutation response.
type Session struct {
	SessionID         string               `json:"session_id"`
	Status            SessionStatus        `json:"status"`
	Algorithm         string               `json:"algorithm"`
	Params            map[string]any       `json:"params"`
	NumClusters       *int                 `json:"num_clusters"`
	ProcessingTimeSec *float64             `json:"processing_time_sec"`
	Message           string               `json:"message"`
	Error             string               `json:"error,omitempty"`
	OriginalFilename  string               `json:"original_filename"`
	Clusters          []Cluster            `json:"clusters"`
	Adjustments       []AdjustmentLogEntry `json:"adjustments"`
	ScatterData       json.RawMessage      `json:"scatter_data,omitempty"`
	ScatterPCATimeSec *float64             `json:"scatter_pca_time_sec,omitempty"`
}

// Cluster is one group within a session. IDs are server-assigned labels and
// are not stable across structural mutations: a merge or split issues new
// labels.
type Cluster struct {
	ID              string         `json:"id"`
	OriginalID      string         `json:"original_id,omitempty"`
	Name            string         `json:"name"`
	Size            int            `json:"size"`
	ContactSheetURL string         `json:"contactSheetUrl,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	Centroid2D      []float64      `json:"centroid_2d,omitempty"`
}

// AdjustmentLogEntry is one server-appended record of a manual adjustment.
// The client only ever reads these.
type AdjustmentLogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	ActionType string         `json:"action_type"`
	Details    map[string]any `json:"details"`
}

// FindCluster returns the cluster with the given id, or nil.
func (s *Session) FindCluster(id string) *Cluster {
	for i := range s.Clusters {
		if s.Clusters[i].ID == id {
			return &s.Clusters[i]
		}
	}
	return nil
}

// ClusterIDs returns the ids of all clusters in collection order.
func (s *Session) ClusterIDs() []string {
	ids := make([]string, len(s.Clusters))
	for i, c := range s.Clusters {
		ids[i] = c.ID
	}
	return ids
}

// Summary derives a list-row view of the session detail, used to keep the
// registry's summary list consistent after a reconciliation fetch.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID:        s.SessionID,
		Status:           s.Status,
		Algorithm:        s.Algorithm,
		Params:           s.Params,
		NumClusters:      s.NumClusters,
		ResultMessage:    s.Message,
		OriginalFilename: s.OriginalFilename,
	}
}
