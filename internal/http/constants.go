package httpx

// Routes shared by handlers, templates and the session guard.
const (
	PathLogin      = "/auth/login"
	PathLogout     = "/auth/logout"
	PathStatus     = "/auth/status"
	PathClearError = "/auth/error/clear"
	PathRegister   = "/auth/register"
	PathMembers    = "/members"

	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
	PathStatic  = "/static/"
)

// Page template names under web/templates/pages.
const (
	pageLogin      = "login"
	pageWaiting    = "waiting"
	pageMembers    = "members"
	pageMember     = "member"
	pageMemberForm = "member_form"
	pageRegister   = "register"
	pageError      = "error"
)
