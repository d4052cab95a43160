package auditfront

import "net/http"

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
// Use for access control in front of the UI, custom logging, or extra headers.
type Middleware func(http.Handler) http.Handler
