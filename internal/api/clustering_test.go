package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klasterhq/klaster/internal/models"
)

func TestStartClustering_MultipartFields(t *testing.T) {
	var (
		gotAlgorithm string
		gotParams    string
		gotEmbedding string
		gotFilename  string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/clustering/start", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotAlgorithm = r.FormValue("algorithm")
		gotParams = r.FormValue("params")

		file, header, err := r.FormFile("embeddingFile")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotEmbedding = string(data)
		gotFilename = header.Filename

		_, _ = w.Write([]byte(`{"session_id":"sess-9","status":"STARTED"}`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	sessionID, err := client.StartClustering(context.Background(), StartJob{
		EmbeddingFile:     strings.NewReader("vector-bytes"),
		EmbeddingFilename: "embeds.npy",
		Algorithm:         "dbscan",
		Params:            map[string]any{"eps": 0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-9", sessionID)
	assert.Equal(t, "dbscan", gotAlgorithm)
	assert.JSONEq(t, `{"eps":0.5}`, gotParams)
	assert.Equal(t, "vector-bytes", gotEmbedding)
	assert.Equal(t, "embeds.npy", gotFilename)
}

func TestStartClustering_WithImageArchive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("imageArchive")
		require.NoError(t, err)
		assert.Equal(t, "images.zip", header.Filename)
		_, _ = w.Write([]byte(`{"session_id":"sess-10"}`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	sessionID, err := client.StartClustering(context.Background(), StartJob{
		EmbeddingFile:     strings.NewReader("x"),
		EmbeddingFilename: "e.npy",
		Algorithm:         "kmeans",
		ImageArchive:      strings.NewReader("zip-bytes"),
		ArchiveFilename:   "images.zip",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-10", sessionID)
}

func TestStartClustering_MissingSessionID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	_, err := client.StartClustering(context.Background(), StartJob{
		EmbeddingFile:     strings.NewReader("x"),
		EmbeddingFilename: "e.npy",
		Algorithm:         "kmeans",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_id")
}

func TestGetSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/clustering/results/sess-1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"session_id": "sess-1",
			"status": "SUCCESS",
			"algorithm": "kmeans",
			"processing_time_sec": 12.5,
			"clusters": [
				{"id": "0", "name": "cats", "size": 40},
				{"id": "1", "name": null, "size": 30}
			],
			"adjustments": [
				{"timestamp": "2026-03-01T10:00:00Z", "action_type": "RENAME_CLUSTER", "details": {"cluster_id": "0"}}
			]
		}`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	session, err := client.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, session.Status)
	require.NotNil(t, session.ProcessingTimeSec)
	assert.Equal(t, 12.5, *session.ProcessingTimeSec)
	require.Len(t, session.Clusters, 2)
	assert.Equal(t, "cats", session.Clusters[0].Name)
	assert.Empty(t, session.Clusters[1].Name)
	require.Len(t, session.Adjustments, 1)
	assert.Equal(t, "RENAME_CLUSTER", session.Adjustments[0].ActionType)
}

func TestAdjust_WireBodies(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/clustering/results/sess-1/adjust", r.URL.Path)
		gotBody = map[string]any{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	ctx := context.Background()

	t.Run("rename carries cluster_id and new_name", func(t *testing.T) {
		name := "cats"
		_, err := client.Adjust(ctx, "sess-1", AdjustRequest{
			Action:    ActionRename,
			ClusterID: "0",
			NewName:   &name,
		})
		require.NoError(t, err)
		assert.Equal(t, "RENAME", gotBody["action"])
		assert.Equal(t, "0", gotBody["cluster_id"])
		assert.Equal(t, "cats", gotBody["new_name"])
		assert.NotContains(t, gotBody, "cluster_ids_to_merge")
	})

	t.Run("clearing a name sends empty string, not omission", func(t *testing.T) {
		name := ""
		_, err := client.Adjust(ctx, "sess-1", AdjustRequest{
			Action:    ActionRename,
			ClusterID: "0",
			NewName:   &name,
		})
		require.NoError(t, err)
		assert.Contains(t, gotBody, "new_name")
		assert.Equal(t, "", gotBody["new_name"])
	})

	t.Run("merge carries cluster_ids_to_merge", func(t *testing.T) {
		_, err := client.Adjust(ctx, "sess-1", AdjustRequest{
			Action:          ActionMerge,
			ClusterIDsMerge: []string{"1", "2"},
		})
		require.NoError(t, err)
		assert.Equal(t, "MERGE_CLUSTERS", gotBody["action"])
		assert.Equal(t, []any{"1", "2"}, gotBody["cluster_ids_to_merge"])
		assert.NotContains(t, gotBody, "new_name")
	})

	t.Run("split carries cluster_id_to_split and num_splits", func(t *testing.T) {
		_, err := client.Adjust(ctx, "sess-1", AdjustRequest{
			Action:         ActionSplit,
			ClusterIDSplit: "3",
			NumSplits:      2,
		})
		require.NoError(t, err)
		assert.Equal(t, "SPLIT_CLUSTER", gotBody["action"])
		assert.Equal(t, "3", gotBody["cluster_id_to_split"])
		assert.Equal(t, float64(2), gotBody["num_splits"])
	})
}

func TestDeleteCluster(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/clustering/results/sess-1/cluster/4", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"cluster deleted, 12 points redistributed"}`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	msg, err := client.DeleteCluster(context.Background(), "sess-1", "4")
	require.NoError(t, err)
	assert.Contains(t, msg, "redistributed")
}

func TestListSessions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/clustering/sessions", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"session_id": "b", "status": "PROCESSING", "algorithm": "kmeans"},
			{"session_id": "a", "status": "SUCCESS", "algorithm": "dbscan", "num_clusters": 5}
		]`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)

	require.Len(t, sessions, 2)
	assert.Equal(t, "b", sessions[0].SessionID)
	require.NotNil(t, sessions[1].NumClusters)
	assert.Equal(t, 5, *sessions[1].NumClusters)
}

func TestExport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/clustering/export/sess-1/assignments.csv", r.URL.Path)
		_, _ = w.Write([]byte("point,cluster\n0,1\n"))
	}))
	defer ts.Close()

	client := New(ts.URL)
	var buf bytes.Buffer
	n, err := client.Export(context.Background(), "sess-1", ExportAssignments, &buf)
	require.NoError(t, err)

	assert.Equal(t, int64(buf.Len()), n)
	assert.Contains(t, buf.String(), "point,cluster")
}

func TestExport_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unknown session"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	client := New(ts.URL)
	var buf bytes.Buffer
	_, err := client.Export(context.Background(), "nope", ExportSessionSummary, &buf)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, buf.Len())
}
