package policy

import (
	"context"
	"fmt"
	"strings"
)

// Admission modes.
const (
	ModeAsk  = "ask"  // consult AskFunc for every flow
	ModeAuto = "auto" // admit within limits (default)
	ModeDeny = "deny" // reject every flow
)

// AskFunc is invoked when Mode==ask. Returning true admits the flow.
type AskFunc func(ctx context.Context, flow string, alive int, p *Policy) bool

// Policy represents the admission settings of a container.
//
//   - Mode controls the high-level behaviour (ask / auto / deny).
//   - MaxFlows caps the number of live flows; zero means unlimited.
//   - AllowList, BlockList filter by flow name regardless of Mode.
//
// A nil *Policy admits every flow.
type Policy struct {
	Mode      string
	MaxFlows  int
	AllowList []string
	BlockList []string
	Ask       AskFunc
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	MaxFlows  int      `json:"maxFlows,omitempty" yaml:"maxFlows,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// Validate checks the mode and limits
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch strings.ToLower(c.Mode) {
	case "", ModeAuto, ModeDeny, ModeAsk:
	default:
		return fmt.Errorf("policy: unsupported mode %q", c.Mode)
	}
	if c.MaxFlows < 0 {
		return fmt.Errorf("policy: maxFlows must not be negative: %d", c.MaxFlows)
	}
	return nil
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		MaxFlows:  p.MaxFlows,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy (without AskFunc).
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		MaxFlows:  c.MaxFlows,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// IsAllowed evaluates AllowList / BlockList by case-insensitive flow name.
func (p *Policy) IsAllowed(flow string) bool {
	if p == nil {
		return true
	}
	normalized := strings.ToLower(flow)
	for _, b := range p.BlockList {
		if normalized == strings.ToLower(b) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if normalized == strings.ToLower(a) {
			return true
		}
	}
	return false
}

// Admit reports whether a flow named flow may run while alive flows are live,
// the candidate included.
func (p *Policy) Admit(ctx context.Context, flow string, alive int) bool {
	if p == nil {
		return true
	}
	if !p.IsAllowed(flow) {
		return false
	}
	if p.MaxFlows > 0 && alive > p.MaxFlows {
		return false
	}
	switch strings.ToLower(p.Mode) {
	case ModeDeny:
		return false
	case ModeAsk:
		if p.Ask == nil {
			return false
		}
		return p.Ask(ctx, flow, alive, p)
	}
	return true
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the embedded policy, nil when absent.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
