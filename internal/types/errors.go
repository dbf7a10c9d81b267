package types

// ErrorBody is the error payload. Problems lists every rejected field of a
// configuration.
type ErrorBody struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Details  any      `json:"details,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewValidationResponse reports a configuration that failed validation.
func NewValidationResponse(code, message string, problems []string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:     code,
			Message:  message,
			Problems: problems,
		},
	}
}
