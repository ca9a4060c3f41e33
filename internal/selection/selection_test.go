package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klasterhq/klaster/internal/models"
)

func TestToggle(t *testing.T) {
	s := New()

	assert.True(t, s.Toggle("1"))
	assert.True(t, s.Contains("1"))
	assert.Equal(t, 1, s.Len())

	// Toggling again deselects.
	assert.False(t, s.Toggle("1"))
	assert.False(t, s.Contains("1"))
	assert.Equal(t, 0, s.Len())
}

func TestIDs_Sorted(t *testing.T) {
	s := New()
	s.Toggle("3")
	s.Toggle("1")
	s.Toggle("2")

	assert.Equal(t, []string{"1", "2", "3"}, s.IDs())
}

func TestRemoveAndClear(t *testing.T) {
	s := New()
	s.Toggle("1")
	s.Toggle("2")

	s.Remove("1")
	assert.False(t, s.Contains("1"))
	assert.True(t, s.Contains("2"))

	// Removing an absent id is a no-op.
	s.Remove("nope")
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestReplace(t *testing.T) {
	s := New()
	s.Toggle("9")

	s.Replace([]string{"1", "2"})
	assert.Equal(t, []string{"1", "2"}, s.IDs())
	assert.False(t, s.Contains("9"))
}

func TestPrune(t *testing.T) {
	s := New()
	s.Toggle("1")
	s.Toggle("2")
	s.Toggle("3")

	// After a merge the server reissued ids; only "2" survived.
	fresh := []models.Cluster{{ID: "2"}, {ID: "4"}, {ID: "5"}}
	dropped := s.Prune(fresh)

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"2"}, s.IDs())
}

func TestPrune_EmptySelection(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Prune([]models.Cluster{{ID: "1"}}))
}
