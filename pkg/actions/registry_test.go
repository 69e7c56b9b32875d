package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnown(t *testing.T) {
	assert.True(t, Known(ActionCreateMailbox))
	assert.True(t, Known(ActionRevokeAccess))
	assert.False(t, Known("provision_badge"))
	assert.False(t, Known(""))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name       string
		actionType string
		config     map[string]any
		wantErr    string
	}{
		{
			name:       "valid mailbox config",
			actionType: ActionCreateMailbox,
			config:     map[string]any{"domain": "example.com", "quota_mb": 2048},
		},
		{
			name:       "mailbox missing domain",
			actionType: ActionCreateMailbox,
			config:     map[string]any{"alias": "jlee"},
			wantErr:    "invalid create_mailbox config",
		},
		{
			name:       "valid license config",
			actionType: ActionAssignLicense,
			config:     map[string]any{"product": "crm-suite", "seats": 1},
		},
		{
			name:       "license with zero seats",
			actionType: ActionAssignLicense,
			config:     map[string]any{"product": "crm-suite", "seats": 0},
			wantErr:    "invalid assign_license config",
		},
		{
			name:       "revoke access requires systems",
			actionType: ActionRevokeAccess,
			config:     map[string]any{"systems": []any{}},
			wantErr:    "invalid revoke_access config",
		},
		{
			name:       "valid revoke access",
			actionType: ActionRevokeAccess,
			config:     map[string]any{"systems": []any{"vpn", "sso"}, "immediate": true},
		},
		{
			name:       "welcome email with nil config",
			actionType: ActionSendWelcomeEmail,
			wantErr:    "invalid send_welcome_email config",
		},
		{
			name:       "unexpected field rejected",
			actionType: ActionSendWelcomeEmail,
			config:     map[string]any{"template": "default", "bcc": []any{"x"}},
			wantErr:    "invalid send_welcome_email config",
		},
		{
			name:       "unknown action type",
			actionType: "provision_badge",
			config:     map[string]any{},
			wantErr:    "unknown action type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.actionType, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}
