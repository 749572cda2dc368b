package cli

import (
	"encoding/json"
	"errors"
	"os"
)

// Response is the standard JSON envelope for all CLI output.
type Response struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
	Meta  *Meta      `json:"meta,omitempty"`
}

// ErrorInfo contains structured error information.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta contains metadata about the response.
type Meta struct {
	Count    int    `json:"count,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
	Key      string `json:"idempotency_key,omitempty"`
}

// errSilent signals to main that the command failed after the error
// envelope was already printed.
var errSilent = errors.New("command failed")

func outputJSON(resp Response) {
	enc := json.NewEncoder(os.Stdout)
	if prettyOutput {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(resp)
}

// outputSuccess emits a successful envelope.
func outputSuccess(data any, meta *Meta) error {
	outputJSON(Response{OK: true, Data: data, Meta: meta})
	return nil
}

// fail emits a structured error envelope and returns a silent error so
// cobra reports a nonzero exit without double-printing.
func fail(err error) error {
	code, details := classifyError(err)
	return failCode(code, err, details)
}

// failCode is fail with the taxonomy code chosen by the caller, for
// failures classifyError cannot see the nature of (e.g. config loading).
func failCode(code string, err error, details any) error {
	outputJSON(Response{
		OK: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: err.Error(),
			Details: details,
		},
	})
	return errSilent
}
