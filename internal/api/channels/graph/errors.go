package graph

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	Status       int    `json:"-"`
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
	Body         string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph API error (status %d)", e.Status)
	}
	return fmt.Sprintf("graph API error (status %d): %s (code: %d, subcode: %d)", e.Status, e.Message, e.Code, e.ErrorSubcode)
}

// ResponseBody returns the raw provider response for logging.
func (e *APIError) ResponseBody() string { return e.Body }

type errorResponse struct {
	Error APIError `json:"error"`
}

func newAPIError(status int, body []byte) *APIError {
	var resp errorResponse
	_ = json.Unmarshal(body, &resp)
	apiErr := resp.Error
	apiErr.Status = status
	apiErr.Body = string(body)
	return &apiErr
}
