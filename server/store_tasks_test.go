package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }

func TestTaskChangesSingleField(t *testing.T) {
	cur := Task{ID: 1, Title: "Fix login", Description: "old", StatusID: 1, PriorityID: 2}

	got := taskChanges(cur, TaskUpdate{StatusID: int64p(3)})

	assert.Len(t, got, 1, "only the changed field should appear")
	assert.Equal(t, FieldChange{From: int64(1), To: int64(3)}, got["status_id"])
}

func TestTaskChangesSkipsUnchangedSubmittedFields(t *testing.T) {
	cur := Task{Title: "Fix login", Description: "desc", StatusID: 1, PriorityID: 2}

	got := taskChanges(cur, TaskUpdate{
		Title:      strp("Fix login"), // same value
		StatusID:   int64p(1),         // same value
		PriorityID: int64p(4),
	})

	assert.Equal(t, map[string]FieldChange{
		"priority_id": {From: int64(2), To: int64(4)},
	}, got)
}

func TestTaskChangesNothingSubmitted(t *testing.T) {
	got := taskChanges(Task{Title: "x", StatusID: 1, PriorityID: 1}, TaskUpdate{})
	assert.Empty(t, got)
	assert.True(t, TaskUpdate{}.empty())
}

func TestTaskChangesAssigneeSetAndClear(t *testing.T) {
	unassigned := Task{Title: "t", StatusID: 1, PriorityID: 1}
	got := taskChanges(unassigned, TaskUpdate{AssigneeID: int64p(7)})
	assert.Equal(t, FieldChange{From: nil, To: int64(7)}, got["assignee_id"])

	assigned := Task{Title: "t", StatusID: 1, PriorityID: 1, AssigneeID: int64p(7)}
	got = taskChanges(assigned, TaskUpdate{AssigneeID: int64p(0)})
	assert.Equal(t, FieldChange{From: int64(7), To: nil}, got["assignee_id"])

	// clearing an already empty assignee is not a change
	got = taskChanges(unassigned, TaskUpdate{AssigneeID: int64p(0)})
	assert.Empty(t, got)
}

func TestTaskChangesParentReassignment(t *testing.T) {
	cur := Task{Title: "child", StatusID: 1, PriorityID: 1, ParentID: int64p(10)}

	got := taskChanges(cur, TaskUpdate{ParentID: int64p(11), Title: strp("child renamed")})

	assert.Equal(t, map[string]FieldChange{
		"parent_id": {From: int64(10), To: int64(11)},
		"title":     {From: "child", To: "child renamed"},
	}, got)
}

func TestNormID(t *testing.T) {
	assert.Nil(t, normID(nil))
	assert.Nil(t, normID(int64p(0)))
	if assert.NotNil(t, normID(int64p(5))) {
		assert.Equal(t, int64(5), *normID(int64p(5)))
	}
}

func TestEqID(t *testing.T) {
	assert.True(t, eqID(nil, nil))
	assert.False(t, eqID(nil, int64p(1)))
	assert.False(t, eqID(int64p(1), nil))
	assert.True(t, eqID(int64p(1), int64p(1)))
	assert.False(t, eqID(int64p(1), int64p(2)))
}
