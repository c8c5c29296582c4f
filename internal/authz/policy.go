// Package authz defines the release-check authorization policy matrix.
//
// The package centralizes role/action authorization so transport handlers and
// other services can call one evaluator instead of duplicating role checks.
// The evaluator is a pure function over explicit state: role, action, current
// check status, and the committed evidence count.
package authz

import (
	"strings"

	"github.com/releasegate/releasegate/internal/check"
)

// Role identifies the caller's resolved role.
type Role string

const (
	// RoleUnspecified represents a missing or unknown role value.
	RoleUnspecified Role = ""
	// RoleOfficer gathers evidence for pending checks.
	RoleOfficer Role = "OFFICER"
	// RoleSupervisor decides pending checks.
	RoleSupervisor Role = "SUPERVISOR"
	// RoleAuditor decides pending checks and reviews audit chains.
	RoleAuditor Role = "AUDITOR"
)

// Action identifies a mutating operation on a check.
type Action string

const (
	// ActionAddEvidence attaches evidence to a pending check.
	ActionAddEvidence Action = "ADD_EVIDENCE"
	// ActionApprove approves a pending check.
	ActionApprove Action = "APPROVE"
	// ActionReject rejects a pending check.
	ActionReject Action = "REJECT"
)

// Decision reason codes surfaced for denial diagnostics.
const (
	// ReasonAllowRole indicates the role is permitted for the action.
	ReasonAllowRole = "ALLOW_ROLE"
	// ReasonDenyRole indicates the role is not permitted for the action.
	ReasonDenyRole = "DENY_ROLE"
	// ReasonDenyStatus indicates the check status disallows the action.
	ReasonDenyStatus = "DENY_STATUS"
	// ReasonDenyNoEvidence indicates approval requires committed evidence.
	ReasonDenyNoEvidence = "DENY_NO_EVIDENCE"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed    bool
	ReasonCode string
}

// allow constructs a permitted decision.
func allow() Decision {
	return Decision{Allowed: true, ReasonCode: ReasonAllowRole}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, ReasonCode: reason}
}

// ParseRole canonicalizes a role label.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleOfficer:
		return RoleOfficer, true
	case RoleSupervisor:
		return RoleSupervisor, true
	case RoleAuditor:
		return RoleAuditor, true
	default:
		return RoleUnspecified, false
	}
}

// roleActions is the static role/action policy table.
var roleActions = map[Action][]Role{
	ActionAddEvidence: {RoleOfficer},
	ActionApprove:     {RoleSupervisor, RoleAuditor},
	ActionReject:      {RoleSupervisor, RoleAuditor},
}

// roleAllowed reports whether the role appears in the action's allow list.
func roleAllowed(role Role, action Action) bool {
	for _, allowed := range roleActions[action] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Permit evaluates the authorization policy for a mutating action.
//
// The evidence count gates approval only: a check with no committed evidence
// cannot be approved regardless of role. Status gating applies to every
// action because all mutations require a pending check.
func Permit(role Role, action Action, status check.Status, evidenceCount int) Decision {
	if !roleAllowed(role, action) {
		return deny(ReasonDenyRole)
	}
	if status != check.StatusPending {
		return deny(ReasonDenyStatus)
	}
	if action == ActionApprove && evidenceCount < 1 {
		return deny(ReasonDenyNoEvidence)
	}
	return allow()
}
