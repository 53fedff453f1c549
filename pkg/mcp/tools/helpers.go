package tools

import "github.com/mark3labs/mcp-go/mcp"

// getOptionalString returns the string argument or "" when absent.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalInt returns the numeric argument truncated to int, or the
// fallback when absent or not a number.
func getOptionalInt(req mcp.CallToolRequest, key string, fallback int) int {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return fallback
	}
	val, ok := args[key].(float64)
	if !ok {
		return fallback
	}
	return int(val)
}
