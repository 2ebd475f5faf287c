package validation

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// Rule is one CEL expression over `claim` that must evaluate to true
type Rule struct {
	Expression string
	Message    string
}

// DefaultRules apply to every new claim
var DefaultRules = []Rule{
	{Expression: `claim.amount > 0.0`, Message: "amount must be greater than zero"},
	{Expression: `size(claim.policyNumber) > 0`, Message: "policyNumber is required"},
	{Expression: `size(claim.description) > 0 && size(claim.description) <= 1000`, Message: "description must be 1-1000 characters"},
	{Expression: `size(claim.claimType) > 0`, Message: "claimType is required"},
}

// IntakeClaim is the view of a new claim the rules see
type IntakeClaim struct {
	Description   string
	Amount        decimal.Decimal
	ClaimType     string
	PolicyNumber  string
	Location      string
	AssignedEmail string
	Requester     string
}

func (c IntakeClaim) activation() map[string]interface{} {
	amount, _ := c.Amount.Float64()
	return map[string]interface{}{
		"claim": map[string]interface{}{
			"description":   c.Description,
			"amount":        amount,
			"claimType":     c.ClaimType,
			"policyNumber":  c.PolicyNumber,
			"location":      c.Location,
			"assignedEmail": c.AssignedEmail,
			"requester":     c.Requester,
		},
	}
}

type compiledRule struct {
	Rule
	program cel.Program
}

// IntakePolicy evaluates claim intake rules before anything touches the ledger
type IntakePolicy struct {
	rules []compiledRule
}

// NewIntakePolicy compiles the default rules plus extra expressions.
// Invalid expressions fail here, at startup.
func NewIntakePolicy(extra []string) (*IntakePolicy, error) {
	env, err := cel.NewEnv(cel.Variable("claim", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	rules := append([]Rule{}, DefaultRules...)
	for _, expr := range extra {
		rules = append(rules, Rule{Expression: expr, Message: "violates intake rule: " + expr})
	}

	policy := &IntakePolicy{}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("CEL compilation error in %q: %w", r.Expression, issues.Err())
		}
		if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
			return nil, fmt.Errorf("intake rule %q must return bool, returns %s", r.Expression, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL program for %q: %w", r.Expression, err)
		}
		policy.rules = append(policy.rules, compiledRule{Rule: r, program: prg})
	}

	return policy, nil
}

// Check returns an invalid-input error listing every violated rule
func (p *IntakePolicy) Check(c IntakeClaim) error {
	vars := c.activation()

	var violations []string
	for _, r := range p.rules {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			violations = append(violations, fmt.Sprintf("%s (evaluation error: %v)", r.Message, err))
			continue
		}
		ok, isBool := out.Value().(bool)
		if !isBool || !ok {
			violations = append(violations, r.Message)
		}
	}

	if len(violations) > 0 {
		return Invalid("claim", "%s", strings.Join(violations, "; "))
	}
	return nil
}

// Len returns the number of compiled rules
func (p *IntakePolicy) Len() int {
	return len(p.rules)
}
