package server

// Route path constants
// All gateway owned routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteAuthLogin    = "/auth/login"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthCallback = "/auth/callback"
	RouteAuthUserinfo = "/auth/userinfo"

	// Health
	RouteHealthz = "/healthz"
)

const (
	contentTypeJSON = "application/json"

	// redirectURIParam names the query parameter carrying the post login/logout destination.
	redirectURIParam = "redirectUri"
)
