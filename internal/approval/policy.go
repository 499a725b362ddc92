package approval

import (
	"time"

	"github.com/trioctl/trio/pkg/models"
)

// Policy configures how the Gate resolves a call's risk level into an
// approve/deny/ask decision, grounded on the teacher's ApprovalPolicy
// (per-risk-level thresholds plus a global mode switch).
type Policy struct {
	Mode models.PolicyMode

	// DecisionWindow bounds how long a call may sit pending before it
	// resolves to denied. Distinct from the tool call's own execution
	// timeout: this clock only runs while waiting on a decision.
	DecisionWindow time.Duration

	// AutoApproveLimit caps how many auto-approvals a single session may
	// accumulate per risk level before autoEdit/yolo degrade back to
	// asking. Zero means unlimited for that level.
	AutoApproveLimit map[models.RiskLevel]int
}

// DefaultPolicy returns the conservative default: prompt at medium risk and
// above, no mode-driven auto-approval beyond the "none" baseline.
func DefaultPolicy() Policy {
	return Policy{
		Mode:           models.PolicyDefault,
		DecisionWindow: 2 * time.Minute,
		AutoApproveLimit: map[models.RiskLevel]int{
			models.RiskLow:    50,
			models.RiskMedium: 20,
			models.RiskHigh:   5,
		},
	}
}

// autoApprove reports whether risk is auto-approved outright by the policy
// mode, before per-session counters are consulted. Critical is never
// auto-approved by any mode.
func (p Policy) autoApprove(risk models.RiskLevel) bool {
	if risk == models.RiskNone {
		return true
	}
	switch p.Mode {
	case models.PolicyYolo:
		return risk != models.RiskCritical
	case models.PolicyAutoEdit:
		return risk == models.RiskLow
	default:
		return false
	}
}

// limitFor returns the configured auto-approval cap for risk, or 0 (no
// limit enforced) if the policy does not name one.
func (p Policy) limitFor(risk models.RiskLevel) int {
	if p.AutoApproveLimit == nil {
		return 0
	}
	return p.AutoApproveLimit[risk]
}
