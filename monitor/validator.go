package monitor

import (
	"encoding/json"

	"acctforge/delivery"
)

// Fixed request schema. Anything that does not match exactly is rejected.
const (
	requestApp     = "acctforge"
	requestVersion = "1.0.0"
	requestAction  = "request_account"
)

type requestEnvelope struct {
	App     string      `json:"app"`
	Version string      `json:"version"`
	Action  string      `json:"action"`
	Data    requestData `json:"data"`
}

type requestData struct {
	RequestedUsername string `json:"requested_username"`
	DeliveryMethod    string `json:"delivery_method"`
	Email             string `json:"email"`
	Notes             string `json:"notes"`
	Timestamp         string `json:"timestamp"`
}

// ProvisionRequest is a decoded, validated request envelope. It exists only
// for the duration of one pipeline pass.
type ProvisionRequest struct {
	RequesterID       string
	AccountName       string
	Method            delivery.Method
	Email             string
	Notes             string
	SourceBlockHeight uint32
	SourceTxID        string
}

// ValidateRequest is the pure validation gate: it accepts only payloads
// matching the exact request schema and fails closed on anything else,
// including malformed JSON.
func ValidateRequest(raw string) (*ProvisionRequest, bool) {
	var env requestEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, false
	}
	if env.App != requestApp || env.Version != requestVersion || env.Action != requestAction {
		return nil, false
	}
	if env.Data.RequestedUsername == "" {
		return nil, false
	}
	method, ok := delivery.ParseMethod(env.Data.DeliveryMethod)
	if !ok {
		return nil, false
	}
	return &ProvisionRequest{
		AccountName: env.Data.RequestedUsername,
		Method:      method,
		Email:       env.Data.Email,
		Notes:       env.Data.Notes,
	}, true
}
