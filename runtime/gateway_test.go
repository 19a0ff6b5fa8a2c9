package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGatewayResponse(t *testing.T) {
	resp, err := ParseGatewayResponse([]byte(`{
		"userData": {"phone": "5551234567", "attempts": 2, "verified": true, "nested": {"a": 1}},
		"ticketNumber": "T-9",
		"phone_valid": true,
		"error_message": "ignored when valid",
		"extra": [1, 2, 3]
	}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"phone": "5551234567", "attempts": "2", "verified": "true"}, resp.UserData)
	assert.Equal(t, "T-9", resp.TicketNumber)
	assert.True(t, resp.Final())
	assert.False(t, resp.Rejected())
	require.NotNil(t, resp.Valid)
	assert.True(t, *resp.Valid)
}

func TestParseGatewayResponse_ValidityFlags(t *testing.T) {
	tests := []struct {
		body     string
		rejected bool
		flagged  bool
	}{
		{body: `{}`, rejected: false, flagged: false},
		{body: `{"valid": true}`, rejected: false, flagged: true},
		{body: `{"valid": false}`, rejected: true, flagged: true},
		{body: `{"email_valid": false, "phone_valid": true}`, rejected: true, flagged: true},
		{body: `{"valid": "false"}`, rejected: false, flagged: false},
		{body: `{"validated": false}`, rejected: false, flagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			resp, err := ParseGatewayResponse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.rejected, resp.Rejected())
			assert.Equal(t, tt.flagged, resp.Valid != nil)
		})
	}
}

func TestParseGatewayResponse_EmptyAndInvalid(t *testing.T) {
	resp, err := ParseGatewayResponse(nil)
	require.NoError(t, err)
	assert.False(t, resp.Final())
	assert.Empty(t, resp.UserData)

	resp, err = ParseGatewayResponse([]byte("  \n"))
	require.NoError(t, err)
	assert.False(t, resp.Rejected())

	_, err = ParseGatewayResponse([]byte("not json"))
	assert.Error(t, err)
}

func TestParseGatewayResponse_NumericTicket(t *testing.T) {
	resp, err := ParseGatewayResponse([]byte(`{"ticketNumber": 1042}`))
	require.NoError(t, err)
	assert.Equal(t, "1042", resp.TicketNumber)
}

func TestGatewayMethod(t *testing.T) {
	assert.Equal(t, "POST", gatewayMethod(nil))
	assert.Equal(t, "POST", gatewayMethod(&APIConfig{}))
	assert.Equal(t, "PATCH", gatewayMethod(&APIConfig{Method: "patch"}))
}

func TestGatewayPayload(t *testing.T) {
	cfg := DefaultConfig()
	session := ChatSession{SessionToken: "tok"}
	data := map[string]string{"issue_type": "billing"}

	ticket := ChatStep{StepKey: "t", APIConfig: &APIConfig{Endpoint: cfg.TicketEndpoint}}
	assert.Equal(t, TicketRequest{SessionToken: "tok", UserData: data, IssueType: "billing"},
		gatewayPayload(cfg, session, ticket, "yes", data))

	generic := ChatStep{StepKey: "g", APIConfig: &APIConfig{Endpoint: "/validate"}}
	assert.Equal(t, GatewayRequest{UserInput: "yes", UserData: data, StepData: generic},
		gatewayPayload(cfg, session, generic, "yes", data))

	cfg.TicketEndpoint = ""
	_, isGeneric := gatewayPayload(cfg, session, ticket, "yes", data).(GatewayRequest)
	assert.True(t, isGeneric)
}
