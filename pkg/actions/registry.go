// Package actions catalogs the automated task actions the core knows how to
// dispatch and validates their configuration payloads.
package actions

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	ActionCreateMailbox    = "create_mailbox"
	ActionAssignLicense    = "assign_license"
	ActionRevokeAccess     = "revoke_access"
	ActionSendWelcomeEmail = "send_welcome_email"
)

// configSchemas maps each action type to the JSON schema its configuration
// must satisfy before a task carrying it is accepted.
var configSchemas = map[string]string{
	ActionCreateMailbox: `{
		"type": "object",
		"properties": {
			"domain": {"type": "string", "minLength": 1},
			"alias": {"type": "string"},
			"quota_mb": {"type": "integer", "minimum": 0}
		},
		"required": ["domain"],
		"additionalProperties": false
	}`,
	ActionAssignLicense: `{
		"type": "object",
		"properties": {
			"product": {"type": "string", "minLength": 1},
			"seats": {"type": "integer", "minimum": 1}
		},
		"required": ["product"],
		"additionalProperties": false
	}`,
	ActionRevokeAccess: `{
		"type": "object",
		"properties": {
			"systems": {
				"type": "array",
				"items": {"type": "string", "minLength": 1},
				"minItems": 1
			},
			"immediate": {"type": "boolean"}
		},
		"required": ["systems"],
		"additionalProperties": false
	}`,
	ActionSendWelcomeEmail: `{
		"type": "object",
		"properties": {
			"template": {"type": "string", "minLength": 1},
			"cc": {
				"type": "array",
				"items": {"type": "string"}
			}
		},
		"required": ["template"],
		"additionalProperties": false
	}`,
}

// Known reports whether the action type is registered.
func Known(actionType string) bool {
	_, ok := configSchemas[actionType]

	return ok
}

// ValidateConfig checks an action configuration against the schema for its
// action type. A nil config is rejected for action types that require fields.
func ValidateConfig(actionType string, config map[string]any) error {
	schema, ok := configSchemas[actionType]
	if !ok {
		return fmt.Errorf("unknown action type: %s", actionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate action config: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid %s config: %s", actionType, strings.Join(details, "; "))
	}

	return nil
}
