package errs

import (
	"net/http"
	"time"
)

type categoryMessages map[Category]string

func (m categoryMessages) forCategory(c Category) string {
	if msg, ok := m[c]; ok {
		return msg
	}
	return "An unexpected error occurred. Please try again."
}

var userMessages = categoryMessages{
	CategoryNetwork:       "Connectivity problem. Please try again in a few moments.",
	CategoryDatabase:      "Temporary problem accessing data. Our team has been notified.",
	CategoryAIAPI:         "The AI service is temporarily unavailable. Using an alternative analysis.",
	CategoryValidation:    "The provided data is invalid. Please check it and try again.",
	CategoryFileSystem:    "Problem accessing system files. Please try again later.",
	CategoryConfiguration: "System configuration problem. Please contact support.",
}

// FormatForUser returns the end-user text for any error.
func FormatForUser(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err, nil).UserMessage()
}

// HTTPStatus maps severity to a status code: low is a client error, anything
// else is a server error.
func HTTPStatus(e *Error) int {
	if e != nil && e.severity == SeverityLow {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Body is the JSON error envelope returned by the HTTP layer.
type Body struct {
	Success   bool      `json:"success"`
	Error     BodyError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// BodyError carries the error fields of the envelope.
type BodyError struct {
	Code             string         `json:"code"`
	Message          string         `json:"message"`
	Category         Category       `json:"category"`
	Severity         Severity       `json:"severity"`
	Timestamp        string         `json:"timestamp"`
	TechnicalMessage string         `json:"technical_message,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	Traceback        string         `json:"traceback,omitempty"`
}

// Response handles err and builds the envelope plus status code. status
// overrides the severity mapping when non-zero. Technical details are only
// included in debug mode.
func (h *Handler) Response(err error, requestID string, ctx map[string]any, status int) (Body, int) {
	e := h.Handle(err, ctx)
	if e == nil {
		e = New(CodeUnknown, "unknown error", CategoryUnknown, SeverityMedium)
	}
	if status == 0 {
		status = HTTPStatus(e)
	}

	body := Body{
		Success: false,
		Error: BodyError{
			Code:      e.code,
			Message:   e.UserMessage(),
			Category:  e.category,
			Severity:  e.severity,
			Timestamp: e.timestamp.UTC().Format(time.RFC3339),
		},
		RequestID: requestID,
	}
	if h.debug {
		body.Error.TechnicalMessage = e.Error()
		body.Error.Context = e.Context()
		body.Error.Traceback = e.StackTrace()
	}
	return body, status
}
