// Package policy evaluates the session admission policy with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision is the outcome of evaluating the admission policy.
type Decision string

const (
	// DecisionAllow records the session as a regular visitor.
	DecisionAllow Decision = "allow"
	// DecisionBot records the session but flags it as automated traffic.
	DecisionBot Decision = "bot"
	// DecisionBlock refuses to create the session.
	DecisionBlock Decision = "block"
)

// Input is the document the policy is evaluated against.
type Input struct {
	UserAgent        string `json:"user_agent"`
	Referrer         string `json:"referrer"`
	ScreenResolution string `json:"screen_resolution"`
	Language         string `json:"language"`
	IPAddress        string `json:"ip_address"`
	DomainName       string `json:"domain_name"`
	DetectedBot      bool   `json:"detected_bot"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.session_policy.decision"),
		rego.Module("session_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the admission policy. A policy without a matching rule allows
// the session.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("policy returned %T, want string", results[0].Expressions[0].Value)
	}
	switch d := Decision(s); d {
	case DecisionAllow, DecisionBot, DecisionBlock:
		return d, nil
	default:
		return "", fmt.Errorf("policy returned unknown decision %q", s)
	}
}

// DefaultPolicy is the default admission policy.
const DefaultPolicy = `
package session_policy

default decision = "allow"

# Health checkers and link unfurlers never render the page.
blocked {
	startswith(lower(input.user_agent), "kube-probe")
}

blocked {
	startswith(lower(input.user_agent), "elb-healthchecker")
}

decision = "block" {
	blocked
}

decision = "bot" {
	not blocked
	input.detected_bot
}
`
