package identity

import (
	"strings"
	"time"
)

// Requirement is the access level a route declares
type Requirement = string

const (
	// RequireNone marks a public route
	RequireNone Requirement = "NONE"
	// RequireAuthenticated needs any live session
	RequireAuthenticated Requirement = "AUTHENTICATED"
	// RequireAdmin needs a live session with at least the ADMIN role
	RequireAdmin Requirement = "ADMIN"
	// RequireSuperAdmin needs a live session with the SUPER_ADMIN role
	RequireSuperAdmin Requirement = "SUPER_ADMIN"
)

// ParseRequirement safely parses a string into a Requirement
func ParseRequirement(s string) (Requirement, bool) {
	r := Requirement(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RequireNone, RequireAuthenticated, RequireAdmin, RequireSuperAdmin:
		return r, true
	default:
		return "", false
	}
}

// GateOutcome is the verdict of a gate evaluation
type GateOutcome = string

const (
	// GateAllow renders the protected content
	GateAllow GateOutcome = "ALLOW"
	// GateRedirect sends the caller elsewhere, never leaking protected content
	GateRedirect GateOutcome = "REDIRECT"
	// GatePending means session state is not yet known. The caller must hold
	// neutral output: no protected content and no redirect flicker.
	GatePending GateOutcome = "PENDING"
)

// GateDecision carries the outcome plus the redirect target when applicable.
type GateDecision struct {
	Outcome    GateOutcome
	RedirectTo string
}

// RoleGate maps (session state, requirement) pairs to access decisions.
// An expired session is indistinguishable from no session.
type RoleGate struct {
	loginRoute     string
	dashboardRoute string
	clock          func() time.Time
}

// NewRoleGate returns a gate configured with the redirect targets from opts.
func NewRoleGate(opts Config) *RoleGate {
	return &RoleGate{
		loginRoute:     opts.GetLoginRoute(),
		dashboardRoute: opts.GetDashboardRoute(),
		clock:          time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (g *RoleGate) WithClock(clock func() time.Time) *RoleGate {
	if clock != nil {
		g.clock = clock
	}
	return g
}

// Evaluate decides access from a mirror snapshot. While the mirror has not
// settled the decision is Pending for any protected requirement.
func (g *RoleGate) Evaluate(state AuthState, requirement Requirement) GateDecision {
	if requirement == RequireNone || requirement == "" {
		return GateDecision{Outcome: GateAllow}
	}

	switch state.Status {
	case SessionUnknown, SessionPending:
		return GateDecision{Outcome: GatePending}
	case SessionAbsent:
		return GateDecision{Outcome: GateRedirect, RedirectTo: g.loginRoute}
	}

	return g.EvaluateSession(state.Session, requirement)
}

// EvaluateSession decides access when the session state is already known,
// which is the server-side path.
func (g *RoleGate) EvaluateSession(session *SessionObject, requirement Requirement) GateDecision {
	if requirement == RequireNone || requirement == "" {
		return GateDecision{Outcome: GateAllow}
	}

	if !session.Active(g.clock()) {
		return GateDecision{Outcome: GateRedirect, RedirectTo: g.loginRoute}
	}

	minRole, needsRole := requirementRole(requirement)
	if !needsRole {
		return GateDecision{Outcome: GateAllow}
	}

	if session.IsAtLeast(minRole) {
		return GateDecision{Outcome: GateAllow}
	}

	// Authenticated but under-privileged callers go to their dashboard, not
	// back to login: they already have a session.
	return GateDecision{Outcome: GateRedirect, RedirectTo: g.dashboardRoute}
}

func requirementRole(requirement Requirement) (Role, bool) {
	switch requirement {
	case RequireAdmin:
		return RoleAdmin, true
	case RequireSuperAdmin:
		return RoleSuperAdmin, true
	default:
		return "", false
	}
}
