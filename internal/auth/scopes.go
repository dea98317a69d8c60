package auth

const (
	ScopeOpenID        = "openid"
	ScopeWorkflowRead  = "wrs:read"
	ScopeWorkflowWrite = "wrs:write"
)
