package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMergePlanCleanTable(t *testing.T) {
	rows := []statusRow{
		{ID: 1, Name: "To Do", ProjectID: 0},
		{ID: 2, Name: "To Do", ProjectID: 5}, // same name, different project: fine
		{ID: 3, Name: "Done", ProjectID: 0},
	}
	assert.Empty(t, statusMergePlan(rows))
}

func TestStatusMergePlanKeepsLowestID(t *testing.T) {
	rows := []statusRow{
		{ID: 9, Name: "To Do", ProjectID: 0},
		{ID: 4, Name: "To Do", ProjectID: 0},
		{ID: 7, Name: "To Do", ProjectID: 0},
	}
	plan := statusMergePlan(rows)
	if assert.Len(t, plan, 1) {
		assert.Equal(t, int64(4), plan[0].Keep)
		assert.ElementsMatch(t, []int64{9, 7}, plan[0].Drop)
	}
}

func TestStatusMergePlanScopesByProject(t *testing.T) {
	rows := []statusRow{
		{ID: 1, Name: "To Do", ProjectID: 0},
		{ID: 2, Name: "To Do", ProjectID: 0},
		{ID: 3, Name: "To Do", ProjectID: 8},
		{ID: 4, Name: "To Do", ProjectID: 8},
		{ID: 5, Name: "Done", ProjectID: 8},
	}
	plan := statusMergePlan(rows)
	if assert.Len(t, plan, 2) {
		assert.Equal(t, int64(1), plan[0].Keep)
		assert.Equal(t, []int64{2}, plan[0].Drop)
		assert.Equal(t, int64(3), plan[1].Keep)
		assert.Equal(t, []int64{4}, plan[1].Drop)
	}
}

// The repair pass must converge: applying a plan leaves a table that plans to
// nothing.
func TestStatusMergePlanIdempotent(t *testing.T) {
	rows := []statusRow{
		{ID: 1, Name: "To Do", ProjectID: 0},
		{ID: 2, Name: "To Do", ProjectID: 0},
		{ID: 3, Name: "Done", ProjectID: 0},
	}
	plan := statusMergePlan(rows)
	assert.Len(t, plan, 1)

	dropped := map[int64]bool{}
	for _, m := range plan {
		for _, id := range m.Drop {
			dropped[id] = true
		}
	}
	var after []statusRow
	for _, r := range rows {
		if !dropped[r.ID] {
			after = append(after, r)
		}
	}
	assert.Empty(t, statusMergePlan(after))
}
