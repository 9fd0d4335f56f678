package policy

import (
	"context"

	"github.com/vaultcore/usp/authn"
	"github.com/vaultcore/usp/authn/risk"
)

// AuthnPolicyEvaluator adapts this package's RBACAuthorizer into
// authn.PolicyEvaluator, so Engine.Login's policy step consults the
// roles assigned here rather than only a risk threshold. It keeps
// authn.DefaultPolicyEvaluator's risk-based step-up logic for the
// decision dimension RBAC doesn't cover.
type AuthnPolicyEvaluator struct {
	RBAC *RBACAuthorizer

	// Action is the RBAC action checked against PolicyRequest.Resource.
	// Defaults to "login".
	Action string

	// StepUpMethods lists the factors required to satisfy a step-up
	// challenge this policy raises. Defaults to {"totp"} if empty.
	StepUpMethods []authn.MFAMethodName
}

// NewAuthnPolicyEvaluator builds an evaluator backed by rbac. rbac may
// be nil, in which case every login is subject only to the risk-based
// step-up/deny logic.
func NewAuthnPolicyEvaluator(rbac *RBACAuthorizer) *AuthnPolicyEvaluator {
	return &AuthnPolicyEvaluator{RBAC: rbac, Action: "login"}
}

// Evaluate implements authn.PolicyEvaluator. A resource-scoped request
// is first checked against RBAC (deny-wins, per Authorize); requests
// with no Resource skip the RBAC check entirely, since there is nothing
// to authorize against. Whatever RBAC allows (or skips) is then subject
// to the same risk-threshold step-up/deny rule
// authn.DefaultPolicyEvaluator applies.
func (p *AuthnPolicyEvaluator) Evaluate(ctx context.Context, req authn.PolicyRequest) (authn.PolicyDecision, error) {
	if p.RBAC != nil && req.Resource != "" {
		action := p.Action
		if action == "" {
			action = "login"
		}
		allowed, err := p.RBAC.Authorize(ctx, req.UserID, req.Resource, action)
		if err != nil {
			return authn.PolicyDecision{}, err
		}
		if !allowed {
			return authn.PolicyDecision{
				Effect: authn.PolicyEffectDeny,
				Reason: "denied by rbac: no role grants " + action + " on " + req.Resource,
			}, nil
		}
	}

	methods := p.StepUpMethods
	if len(methods) == 0 {
		methods = []authn.MFAMethodName{"totp"}
	}

	switch req.Risk.Level {
	case risk.LevelCritical:
		return authn.PolicyDecision{Effect: authn.PolicyEffectDeny, Reason: "risk level critical"}, nil
	case risk.LevelHigh:
		if req.StepUpSatisfied {
			return authn.PolicyDecision{Effect: authn.PolicyEffectAllow}, nil
		}
		return authn.PolicyDecision{Effect: authn.PolicyEffectRequireStepUp, RequiredMethods: methods, Reason: "risk level high"}, nil
	default:
		return authn.PolicyDecision{Effect: authn.PolicyEffectAllow}, nil
	}
}
