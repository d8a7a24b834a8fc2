package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMembershipDeltaAddAndRemove(t *testing.T) {
	toAdd, toRemove := membershipDelta([]int64{1, 2, 3}, []int64{2, 3, 4, 5})
	assert.Equal(t, []int64{4, 5}, toAdd)
	assert.Equal(t, []int64{1}, toRemove)
}

func TestMembershipDeltaNoChange(t *testing.T) {
	toAdd, toRemove := membershipDelta([]int64{1, 2}, []int64{1, 2})
	assert.Empty(t, toAdd)
	assert.Empty(t, toRemove)
}

func TestMembershipDeltaEmptyDesiredRemovesAll(t *testing.T) {
	toAdd, toRemove := membershipDelta([]int64{1, 2}, nil)
	assert.Empty(t, toAdd)
	assert.Equal(t, []int64{1, 2}, toRemove)
}

func TestMembershipDeltaFromEmpty(t *testing.T) {
	toAdd, toRemove := membershipDelta(nil, []int64{9})
	assert.Equal(t, []int64{9}, toAdd)
	assert.Empty(t, toRemove)
}

func TestMembershipDeltaIgnoresDuplicateDesired(t *testing.T) {
	toAdd, toRemove := membershipDelta([]int64{1}, []int64{1, 2, 2, 2})
	assert.Equal(t, []int64{2}, toAdd)
	assert.Empty(t, toRemove)
}
