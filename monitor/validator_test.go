package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctforge/delivery"
)

const validRequestJSON = `{
	"app": "acctforge",
	"version": "1.0.0",
	"action": "request_account",
	"data": {
		"requested_username": "newuser1",
		"delivery_method": "email",
		"email": "newuser1@example.com",
		"notes": "please",
		"timestamp": "2025-06-01T12:00:00Z"
	}
}`

func TestValidateRequestAccepts(t *testing.T) {
	req, ok := ValidateRequest(validRequestJSON)
	require.True(t, ok)
	assert.Equal(t, "newuser1", req.AccountName)
	assert.Equal(t, delivery.MethodEmail, req.Method)
	assert.Equal(t, "newuser1@example.com", req.Email)
	assert.Equal(t, "please", req.Notes)
}

func TestValidateRequestOptionalFields(t *testing.T) {
	raw := `{"app":"acctforge","version":"1.0.0","action":"request_account",
		"data":{"requested_username":"newuser2","delivery_method":"memo"}}`
	req, ok := ValidateRequest(raw)
	require.True(t, ok)
	assert.Equal(t, delivery.MethodMemo, req.Method)
	assert.Empty(t, req.Email)
	assert.Empty(t, req.Notes)
}

// Every mutated field fails closed.
func TestValidateRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"app": "acctforge",`},
		{"empty string", ""},
		{"json array", `["acctforge"]`},
		{"wrong app", `{"app":"otherapp","version":"1.0.0","action":"request_account","data":{"requested_username":"u","delivery_method":"email"}}`},
		{"missing app", `{"version":"1.0.0","action":"request_account","data":{"requested_username":"u","delivery_method":"email"}}`},
		{"wrong version", `{"app":"acctforge","version":"2.0.0","action":"request_account","data":{"requested_username":"u","delivery_method":"email"}}`},
		{"wrong action", `{"app":"acctforge","version":"1.0.0","action":"delete_account","data":{"requested_username":"u","delivery_method":"email"}}`},
		{"missing username", `{"app":"acctforge","version":"1.0.0","action":"request_account","data":{"delivery_method":"email"}}`},
		{"empty username", `{"app":"acctforge","version":"1.0.0","action":"request_account","data":{"requested_username":"","delivery_method":"email"}}`},
		{"missing method", `{"app":"acctforge","version":"1.0.0","action":"request_account","data":{"requested_username":"u"}}`},
		{"unknown method", `{"app":"acctforge","version":"1.0.0","action":"request_account","data":{"requested_username":"u","delivery_method":"pigeon"}}`},
		{"method wrong case", `{"app":"acctforge","version":"1.0.0","action":"request_account","data":{"requested_username":"u","delivery_method":"Email"}}`},
		{"missing data", `{"app":"acctforge","version":"1.0.0","action":"request_account"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := ValidateRequest(tt.raw)
			assert.False(t, ok)
			assert.Nil(t, req)
		})
	}
}
