package mcp

import "fmt"

// Standard JSON-RPC 2.0 error codes.
const (
	// ErrCodeParseError indicates invalid JSON was received.
	ErrCodeParseError = -32700

	// ErrCodeInvalidRequest indicates the JSON is not a valid JSON-RPC request.
	ErrCodeInvalidRequest = -32600

	// ErrCodeMethodNotFound indicates the method does not exist.
	ErrCodeMethodNotFound = -32601

	// ErrCodeInvalidParams indicates invalid method parameters.
	ErrCodeInvalidParams = -32602

	// ErrCodeInternalError indicates an internal JSON-RPC error. Kept
	// distinct from ErrCodeMethodNotFound: unknown method and handler
	// failure are different categories.
	ErrCodeInternalError = -32603
)

// Custom routerd error codes (-32001 to -32099).
const (
	// ErrCodeToolNotFound indicates the named tool is not registered.
	ErrCodeToolNotFound = -32001

	// ErrCodeToolError indicates tool execution failed.
	ErrCodeToolError = -32002

	// ErrCodeToolTimeout indicates tool execution exceeded its deadline.
	ErrCodeToolTimeout = -32003
)

// NewJSONRPCError creates a JSON-RPC error with a custom message.
func NewJSONRPCError(code int, message string, data interface{}) *JSONRPCError {
	return &JSONRPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// InvalidRequestError creates an invalid request error. Used for both
// undecodable bodies (id is unknowable, respond with id null) and
// structurally invalid envelopes.
func InvalidRequestError(detail string) *JSONRPCError {
	data := map[string]string{}
	if detail != "" {
		data["detail"] = detail
	}
	return NewJSONRPCError(ErrCodeInvalidRequest, "Invalid Request", data)
}

// MethodNotFoundError creates a method not found error carrying the
// offending method name as error data.
func MethodNotFoundError(method string) *JSONRPCError {
	return NewJSONRPCError(ErrCodeMethodNotFound, "Method not found", map[string]string{
		"method": method,
	})
}

// InvalidParamsError creates an invalid params error.
func InvalidParamsError(detail string) *JSONRPCError {
	return NewJSONRPCError(ErrCodeInvalidParams, "Invalid params: "+detail, nil)
}

// InternalError creates an internal error.
func InternalError(err error) *JSONRPCError {
	data := map[string]string{}
	if err != nil {
		data["detail"] = err.Error()
	}
	return NewJSONRPCError(ErrCodeInternalError, "Internal error", data)
}

// ToolNotFoundError creates a tool not found error.
func ToolNotFoundError(name string) *JSONRPCError {
	return NewJSONRPCError(ErrCodeToolNotFound, fmt.Sprintf("Tool '%s' not found", name), map[string]string{
		"tool": name,
	})
}

// ToolError creates a tool execution error.
func ToolError(name string, err error) *JSONRPCError {
	data := map[string]string{"tool": name}
	if err != nil {
		data["detail"] = err.Error()
	}
	return NewJSONRPCError(ErrCodeToolError, "Tool execution error", data)
}

// ToolTimeoutError creates a tool timeout error.
func ToolTimeoutError(name string) *JSONRPCError {
	return NewJSONRPCError(ErrCodeToolTimeout, fmt.Sprintf("Tool '%s' timed out", name), map[string]string{
		"tool": name,
	})
}

// Error implements the error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// ErrorResponse creates a JSON-RPC error response.
func ErrorResponse(id interface{}, err *JSONRPCError) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   err,
	}
}

// SuccessResponse creates a JSON-RPC success response.
func SuccessResponse(id interface{}, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}
