package httpapi

import "context"

type authContextKey string

const authUserIDKey authContextKey = "authUserID"

func withUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, authUserIDKey, userID)
}

// userIDFromContext returns the authenticated subject, or "" for anonymous
// requests on optional-auth routes.
func userIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(authUserIDKey).(string); ok {
		return v
	}
	return ""
}
