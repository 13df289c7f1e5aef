package middlewares

// ContextKey is used to key context values.
type ContextKey int

const (
	// ContextIPAddress holds the caller's IP as resolved by the ClientIP
	// middleware, either from X-Forwarded-For or from the connection
	// remote address.
	ContextIPAddress ContextKey = iota
)
