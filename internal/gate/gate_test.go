package gate

import (
	"testing"

	"github.com/sourceplane/flowci/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	required := []string{"coverage", "lint", "test"}

	t.Run("all succeeded passes", func(t *testing.T) {
		result := Evaluate(required, map[string][]model.Status{
			"lint":     {model.StatusSucceeded},
			"test":     {model.StatusSucceeded, model.StatusSucceeded, model.StatusSucceeded},
			"coverage": {model.StatusSucceeded},
		})
		assert.True(t, result.Success)
		assert.Empty(t, result.Blocking)
	})

	t.Run("one failed instance anywhere blocks", func(t *testing.T) {
		result := Evaluate(required, map[string][]model.Status{
			"lint":     {model.StatusSucceeded},
			"test":     {model.StatusSucceeded, model.StatusFailed, model.StatusSucceeded},
			"coverage": {model.StatusSucceeded},
		})
		assert.False(t, result.Success)
		require.Len(t, result.Blocking, 1)
		assert.Equal(t, "test", result.Blocking[0].Job)
	})

	t.Run("cancelled instance blocks", func(t *testing.T) {
		result := Evaluate(required, map[string][]model.Status{
			"lint":     {model.StatusSucceeded},
			"test":     {model.StatusFailed, model.StatusCancelled},
			"coverage": {model.StatusSucceeded},
		})
		assert.False(t, result.Success)
		assert.Len(t, result.Blocking, 2)
	})

	t.Run("wholly skipped required job is non-blocking", func(t *testing.T) {
		result := Evaluate(required, map[string][]model.Status{
			"lint":     {model.StatusSucceeded},
			"test":     {model.StatusSucceeded},
			"coverage": {model.StatusSkipped},
		})
		assert.True(t, result.Success)
	})

	t.Run("missing required job blocks", func(t *testing.T) {
		result := Evaluate(required, map[string][]model.Status{
			"lint": {model.StatusSucceeded},
			"test": {model.StatusSucceeded},
		})
		assert.False(t, result.Success)
		require.Len(t, result.Blocking, 1)
		assert.Equal(t, "coverage", result.Blocking[0].Job)
		assert.Equal(t, "no recorded instances", result.Blocking[0].Reason)
	})

	t.Run("non-terminal instance blocks", func(t *testing.T) {
		result := Evaluate([]string{"test"}, map[string][]model.Status{
			"test": {model.StatusRunning},
		})
		assert.False(t, result.Success)
		assert.Contains(t, result.Blocking[0].Reason, "not terminal")
	})

	t.Run("non-required failure is ignored", func(t *testing.T) {
		result := Evaluate([]string{"lint"}, map[string][]model.Status{
			"lint": {model.StatusSucceeded},
			"docs": {model.StatusFailed},
		})
		assert.True(t, result.Success)
	})

	t.Run("empty required set passes vacuously", func(t *testing.T) {
		result := Evaluate(nil, map[string][]model.Status{
			"anything": {model.StatusFailed},
		})
		assert.True(t, result.Success)
	})
}
