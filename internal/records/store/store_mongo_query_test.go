package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"concordia/internal/records/models"
)

func TestActivityQuery_StatusAndStatusNotCombine(t *testing.T) {
	active := models.ActivityActive
	deleted := models.ActivityDeleted

	q := activityQuery("t", ActivityFilter{Status: &active, StatusNot: &deleted})

	// Both predicates must survive; a plain "status" key would mean one
	// overwrote the other.
	assert.NotContains(t, q, "status")
	and, ok := q["$and"].(bson.A)
	require.True(t, ok, "expected an $and clause, got %v", q)
	assert.Contains(t, and, bson.M{"status": active})
	assert.Contains(t, and, bson.M{"status": bson.M{"$ne": deleted}})
}

func TestActivityQuery_SingleStatusPredicates(t *testing.T) {
	active := models.ActivityActive
	q := activityQuery("t", ActivityFilter{Status: &active})
	assert.Equal(t, active, q["status"])

	deleted := models.ActivityDeleted
	q = activityQuery("t", ActivityFilter{StatusNot: &deleted})
	assert.Equal(t, bson.M{"$ne": deleted}, q["status"])
	assert.NotContains(t, q, "$and")
}
