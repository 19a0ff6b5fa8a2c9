package runtime

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// GatewayRequest is the payload sent to a generic step endpoint.
type GatewayRequest struct {
	UserInput string            `json:"userInput"`
	UserData  map[string]string `json:"userData"`
	StepData  ChatStep          `json:"stepData"`
}

// TicketRequest is the payload sent to the ticket creation endpoint.
type TicketRequest struct {
	SessionToken string            `json:"sessionToken"`
	UserData     map[string]string `json:"userData"`
	IssueType    string            `json:"issueType"`
}

const (
	issueTypeField   = "issue_type"
	defaultIssueType = "general"
)

// GatewayResponse holds the few loosely typed fields the runtime inspects.
// Anything else in the response body is ignored.
type GatewayResponse struct {
	UserData     map[string]string
	TicketNumber string
	// Valid is nil when the response carries no validity flag.
	Valid        *bool
	ErrorMessage string
}

// Final reports whether the response ends the flow for this session.
func (r GatewayResponse) Final() bool {
	return r.TicketNumber != ""
}

// Rejected reports whether the response flagged the input as invalid.
func (r GatewayResponse) Rejected() bool {
	return r.Valid != nil && !*r.Valid
}

// ParseGatewayResponse extracts userData, ticketNumber, the `valid`/`*_valid`
// flags and error_message from a response body of any shape.
func ParseGatewayResponse(body []byte) (GatewayResponse, error) {
	resp := GatewayResponse{UserData: map[string]string{}}
	if len(bytes.TrimSpace(body)) == 0 {
		return resp, nil
	}

	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return resp, fmt.Errorf("error parsing gateway response: %w", err)
	}

	if data := parsed.Search("userData"); data != nil {
		for k, child := range data.ChildrenMap() {
			if v, ok := ScalarString(child.Data()); ok {
				resp.UserData[k] = v
			}
		}
	}

	if ticket := parsed.Search("ticketNumber"); ticket != nil {
		if v, ok := ScalarString(ticket.Data()); ok {
			resp.TicketNumber = v
		}
	}

	if msg, ok := parsed.Search("error_message").Data().(string); ok {
		resp.ErrorMessage = msg
	}

	for k, child := range parsed.ChildrenMap() {
		if k != "valid" && !strings.HasSuffix(k, "_valid") {
			continue
		}
		flag, ok := child.Data().(bool)
		if !ok {
			continue
		}
		if !flag {
			resp.Valid = &flag
			break
		}
		if resp.Valid == nil {
			resp.Valid = &flag
		}
	}

	return resp, nil
}

// gatewayPayload builds the request body for step. The ticket endpoint gets
// the session token and accumulated data; every other endpoint gets the generic shape.
func gatewayPayload(cfg Config, session ChatSession, step ChatStep, answer string, data map[string]string) any {
	if cfg.TicketEndpoint != "" && step.APIConfig.Endpoint == cfg.TicketEndpoint {
		issue := data[issueTypeField]
		if issue == "" {
			issue = defaultIssueType
		}
		return TicketRequest{
			SessionToken: session.SessionToken,
			UserData:     data,
			IssueType:    issue,
		}
	}
	return GatewayRequest{
		UserInput: answer,
		UserData:  data,
		StepData:  step,
	}
}

func gatewayMethod(cfg *APIConfig) string {
	if cfg == nil || cfg.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(cfg.Method)
}
