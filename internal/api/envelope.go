package api

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Envelope is the response wrapper every backend endpoint uses.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type errorBody struct {
	Code        json.RawMessage `json:"code"`
	Description string          `json:"description"`
	Message     string          `json:"message"`
}

// ErrorDescription returns the most specific error text in the envelope:
// error.description, then error as a plain string, then error.message, then message.
func (e *Envelope) ErrorDescription() string {
	if len(e.Error) > 0 && !isNull(e.Error) {
		var body errorBody
		if json.Unmarshal(e.Error, &body) == nil {
			if body.Description != "" {
				return body.Description
			}
			if body.Message != "" {
				return body.Message
			}
		}

		var text string
		if json.Unmarshal(e.Error, &text) == nil && text != "" {
			return text
		}
	}

	return e.Message
}

// ErrorCode returns error.code as text, or "".
func (e *Envelope) ErrorCode() string {
	if len(e.Error) == 0 || isNull(e.Error) {
		return ""
	}

	var body errorBody
	if json.Unmarshal(e.Error, &body) != nil || len(body.Code) == 0 || isNull(body.Code) {
		return ""
	}

	var code string
	if json.Unmarshal(body.Code, &code) == nil {
		return code
	}
	return string(body.Code)
}

// HasData reports whether the envelope carries a non-null data field.
func (e *Envelope) HasData() bool {
	return len(e.Data) > 0 && !isNull(e.Data)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
