package mcp

import (
	"encoding/json"
)

// ParseRequestBytes parses a JSON-RPC request from bytes. Only an
// undecodable body is a parse failure, reported as Invalid Request
// (-32600) with an unknowable id: the caller responds with id null.
// Envelope validation of a decoded request happens in Dispatch, where
// the request id is known and can be echoed.
func ParseRequestBytes(data []byte) (*JSONRPCRequest, *JSONRPCError) {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, InvalidRequestError(err.Error())
	}
	return &req, nil
}

// ValidateRequest validates a decoded JSON-RPC request envelope. A
// missing method is not checked here; the dispatcher routes it to
// method-not-found like any other unknown method.
func ValidateRequest(req *JSONRPCRequest) *JSONRPCError {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return InvalidRequestError(`jsonrpc must be "2.0"`)
	}
	return nil
}

// NewNotification creates a new JSON-RPC notification.
func NewNotification(method string, params interface{}) *JSONRPCNotification {
	return &JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// UnmarshalParams unmarshals request params into a typed struct, returning
// the zero value when params are absent.
func UnmarshalParams[T any](params json.RawMessage) (*T, *JSONRPCError) {
	var result T
	if len(params) == 0 {
		return &result, nil
	}

	if err := json.Unmarshal(params, &result); err != nil {
		return nil, InvalidParamsError(err.Error())
	}
	return &result, nil
}

// ToolResultText creates a text content tool result.
func ToolResultText(text string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

// ToolResultError creates an error tool result.
func ToolResultError(message string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{{Type: "text", Text: message}},
		IsError: true,
	}
}

// EmptyInputSchema returns the placeholder schema advertised for tools
// that did not declare one.
func EmptyInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
