package core

import "context"

type contextKey string

const ctxKeyClient contextKey = "audit_client"

// ClientInfo identifies the caller of a request for audit entries.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithClient attaches client details to ctx for audit logging.
func WithClient(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, ctxKeyClient, info)
}

// ClientFromContext returns the client details stored by WithClient.
func ClientFromContext(ctx context.Context) ClientInfo {
	if v, ok := ctx.Value(ctxKeyClient).(ClientInfo); ok {
		return v
	}
	return ClientInfo{}
}
