package strategy

import (
	"fmt"
	"strings"
)

// Policy decides whether to trade given a Context. Implementations must be
// pure apart from their own State.
type Policy interface {
	Name() string
	Decide(ctx Context) (Intent, error)
}

type constructor func(params Params) Policy

var registry = map[string]constructor{
	"default":   func(p Params) Policy { return newConservativePolicy(p) },
	"sniper":    func(p Params) Policy { return newSniperPolicy(p) },
	"arb":       func(p Params) Policy { return newArbPolicy(p) },
	"arbitrage": func(p Params) Policy { return newArbPolicy(p) },
}

// Build resolves a policy by name. Unknown names resolve to a no-op policy
// that always HOLDs with reason "no_policy"; lookup never fails.
func Build(name string, params Params) Policy {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return holdPolicy{}
	}
	return ctor(params)
}

// Known reports whether name maps to a real policy.
func Known(name string) bool {
	_, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// List returns the registered strategy names.
func List() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

// holdPolicy is the safe fallback for unknown strategy names.
type holdPolicy struct{}

func (holdPolicy) Name() string { return "hold" }

func (holdPolicy) Decide(Context) (Intent, error) {
	return Hold("no_policy"), nil
}

// SafeDecide runs a policy and contains faults: an error or panic inside the
// policy becomes a HOLD intent carrying the fault text, never a crashed loop.
func SafeDecide(p Policy, ctx Context) (intent Intent, decideErr error) {
	defer func() {
		if r := recover(); r != nil {
			decideErr = fmt.Errorf("strategy %s panic: %v", p.Name(), r)
			intent = Hold(fmt.Sprintf("strategy_error:%s", truncate(fmt.Sprint(r), 50)))
		}
	}()

	intent, err := p.Decide(ctx)
	if err != nil {
		return Hold(fmt.Sprintf("strategy_error:%s", truncate(err.Error(), 50))), err
	}
	if verr := intent.Validate(); verr != nil {
		return Hold(fmt.Sprintf("strategy_error:%s", truncate(verr.Error(), 50))),
			fmt.Errorf("strategy %s produced invalid intent: %w", p.Name(), verr)
	}
	return intent, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
