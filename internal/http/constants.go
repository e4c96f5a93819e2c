package http

import "time"

// Generic HTTP / JSON strings
const (
	HTTPErrorInvalidJSONText = "invalid JSON"
	HTTPErrorForbiddenText   = "forbidden"
	HTTPErrorForbiddenHost   = "forbidden host"
	HTTPRouteUnmatched       = "unmatched"
	HTTPHealthStatusOKText   = "ok"
)

// Common JSON keys
const (
	JSONKeyError    = "error"
	JSONKeyMessage  = "message"
	JSONKeyStatus   = "status"
	JSONKeyVersion  = "version"
	JSONKeyNetworks = "networks"
	JSONKeyActive   = "active"
)

// Request metadata
const (
	HeaderRequestID     = "X-Request-Id"
	ContextKeyRequestID = "requestId"
)

// CORS defaults for the local UI
const (
	DefaultUIOrigin = "http://localhost:3000"
	CORSMaxAge      = 10 * time.Minute
)

// Amount formatting for quote previews
const (
	DisplayMaxDecimals = 6
)
