package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klasterhq/klaster/internal/models"
)

func testSession() *models.Session {
	secs := 12.5
	return &models.Session{
		SessionID: "s-1",
		Status:    models.StatusReclustered,
		Algorithm: "kmeans",
		Params:    map[string]any{"n_clusters": float64(5)},
		ProcessingTimeSec: &secs,
		Clusters: []models.Cluster{
			{ID: "0", Name: "portraits", Size: 120},
			{ID: "1", Size: 4},
		},
		Adjustments: []models.AdjustmentLogEntry{
			{ActionType: "MERGE_CLUSTERS"},
			{ActionType: "RENAME_CLUSTER"},
		},
	}
}

func TestBuildNarrativePrompt(t *testing.T) {
	t.Run("includes run facts", func(t *testing.T) {
		system, user := buildNarrativePrompt(testSession(), 72)

		assert.Contains(t, system, "clustering run")
		assert.Contains(t, system, "Plain prose")

		assert.Contains(t, user, "kmeans")
		assert.Contains(t, user, "portraits")
		assert.Contains(t, user, "MERGE_CLUSTERS")
		assert.Contains(t, user, `"quality_score":72`)
	})

	t.Run("omits absent fields", func(t *testing.T) {
		s := testSession()
		s.ProcessingTimeSec = nil
		s.Clusters[0].Name = ""
		_, user := buildNarrativePrompt(s, 10)

		assert.NotContains(t, user, "processing_time_sec")
		assert.NotContains(t, user, "portraits")
	})
}
