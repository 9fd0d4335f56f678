package authn

import (
	"context"

	"github.com/vaultcore/usp/authn/risk"
)

// PolicyEffect is the outcome of a PolicyEvaluator decision.
type PolicyEffect string

const (
	PolicyEffectAllow         PolicyEffect = "allow"
	PolicyEffectRequireStepUp PolicyEffect = "require_step_up"
	PolicyEffectDeny          PolicyEffect = "deny"
)

// PolicyRequest is what Engine.Login evaluates against a policy, per
// spec §4.6 item 3 ("policy evaluation given score and requested
// resource: may require step-up MFA, may deny outright").
type PolicyRequest struct {
	UserID          string
	Resource        string
	Risk            risk.Assessment
	StepUpSatisfied bool
}

// PolicyDecision is a PolicyEvaluator's verdict.
type PolicyDecision struct {
	Effect          PolicyEffect
	RequiredMethods []MFAMethodName
	Reason          string
}

// MFAMethodName avoids a direct authn->mfa type dependency in the
// PolicyEvaluator interface; DefaultPolicyEvaluator and Engine both
// convert it to mfa.MFAMethod at the call site.
type MFAMethodName string

// PolicyEvaluator decides what a login attempt must additionally
// satisfy. Engine depends on this narrow interface rather than the
// concrete policy package directly, so authn can be built and tested
// independently of policy's own ABAC/RBAC evaluation.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, req PolicyRequest) (PolicyDecision, error)
}

// DefaultPolicyEvaluator implements a risk-threshold-only policy: deny
// outright at risk.LevelCritical, require step-up at risk.LevelHigh or
// above (unless already satisfied), allow otherwise. It has no
// resource-scoped rules; it exists so Engine has a usable default
// before the policy package's ABAC/RBAC evaluation is wired in.
type DefaultPolicyEvaluator struct {
	// StepUpMethods lists the factors required to satisfy a step-up
	// challenge this policy raises. Defaults to {TOTP} if empty.
	StepUpMethods []MFAMethodName
}

// Evaluate implements PolicyEvaluator.
func (p *DefaultPolicyEvaluator) Evaluate(ctx context.Context, req PolicyRequest) (PolicyDecision, error) {
	methods := p.StepUpMethods
	if len(methods) == 0 {
		methods = []MFAMethodName{"totp"}
	}

	switch req.Risk.Level {
	case risk.LevelCritical:
		return PolicyDecision{Effect: PolicyEffectDeny, Reason: "risk level critical"}, nil
	case risk.LevelHigh:
		if req.StepUpSatisfied {
			return PolicyDecision{Effect: PolicyEffectAllow}, nil
		}
		return PolicyDecision{Effect: PolicyEffectRequireStepUp, RequiredMethods: methods, Reason: "risk level high"}, nil
	default:
		return PolicyDecision{Effect: PolicyEffectAllow}, nil
	}
}
