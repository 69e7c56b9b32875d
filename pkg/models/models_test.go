package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatus_Terminal(t *testing.T) {
	terminal := []RequestStatus{RequestStatusCompleted, RequestStatusCancelled, RequestStatusRejected}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "expected %s to be terminal", s)
	}

	open := []RequestStatus{RequestStatusPending, RequestStatusApproved, RequestStatusInProgress}
	for _, s := range open {
		assert.False(t, s.Terminal(), "expected %s to be non-terminal", s)
	}
}

func TestRequestStatus_Cancellable(t *testing.T) {
	assert.True(t, RequestStatusPending.Cancellable())
	assert.True(t, RequestStatusApproved.Cancellable())
	assert.True(t, RequestStatusInProgress.Cancellable())
	assert.True(t, RequestStatusRejected.Cancellable())
	assert.False(t, RequestStatusCompleted.Cancellable())
	assert.False(t, RequestStatusCancelled.Cancellable())
}

func TestTaskStatus_Actionable(t *testing.T) {
	assert.True(t, TaskStatusPending.Actionable())
	assert.True(t, TaskStatusInProgress.Actionable())
	assert.False(t, TaskStatusBlocked.Actionable())
	assert.False(t, TaskStatusCompleted.Actionable())
	assert.False(t, TaskStatusSkipped.Actionable())
}

func TestRole_Elevated(t *testing.T) {
	assert.True(t, RoleAdmin.Elevated())
	assert.True(t, RoleHR.Elevated())
	assert.True(t, RoleIT.Elevated())
	assert.False(t, RoleManager.Elevated())
	assert.False(t, RoleMember.Elevated())
}

func TestUserProfile_DisplayName(t *testing.T) {
	tests := []struct {
		name    string
		profile UserProfile
		want    string
	}{
		{"full name", UserProfile{FirstName: "Sarah", LastName: "Chen", Email: "sarah@example.com"}, "Sarah Chen"},
		{"first only", UserProfile{FirstName: "Sarah", Email: "sarah@example.com"}, "Sarah"},
		{"last only", UserProfile{LastName: "Chen", Email: "sarah@example.com"}, "Chen"},
		{"email fallback", UserProfile{Email: "sarah@example.com"}, "sarah@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.DisplayName())
		})
	}
}
