package risk

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/paysentry/internal/domain"
)

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

var (
	envOnce sync.Once
	ruleEnv *cel.Env
	envErr  error
)

// environment returns the shared CEL environment exposing the parsed address.
func environment() (*cel.Env, error) {
	envOnce.Do(func() {
		ruleEnv, envErr = cel.NewEnv(
			cel.Variable("identifier", cel.StringType),
			cel.Variable("user", cel.StringType),
			cel.Variable("handle", cel.StringType),
			cel.Variable("display_name", cel.StringType),
			cel.Variable("merchant_code", cel.StringType),
			cel.Variable("transaction_ref", cel.StringType),
		)
		if envErr != nil {
			envErr = fmt.Errorf("failed to create CEL environment: %w", envErr)
		}
	})
	return ruleEnv, envErr
}

// ValidateRule compiles a rule without loading it anywhere.
func ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := compileRule(cfg)
	return err
}

// CompileRules compiles enabled rules, preserving their order.
func CompileRules(configs []*domain.RuleConfig) ([]*CompiledRule, error) {
	compiled := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		r, err := compileRule(cfg)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, r)
	}
	return compiled, nil
}

// Matches evaluates the rule. Evaluation errors count as no match.
func (r *CompiledRule) Matches(vars map[string]any) bool {
	out, _, err := r.Program.Eval(vars)
	if err != nil {
		return false
	}
	return out == types.True
}

// Reason returns the text recorded when the rule matches.
func (r *CompiledRule) Reason() string {
	if r.Config.Reason != "" {
		return r.Config.Reason
	}
	return fmt.Sprintf("Matched rule %s", r.Config.Name)
}

func compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	env, err := environment()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func ruleVariables(addr domain.ParsedAddress, user, handle string) map[string]any {
	return map[string]any{
		"identifier":      addr.Identifier,
		"user":            user,
		"handle":          handle,
		"display_name":    addr.DisplayName,
		"merchant_code":   addr.MerchantCode,
		"transaction_ref": addr.TransactionRef,
	}
}
