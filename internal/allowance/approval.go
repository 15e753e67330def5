package allowance

import (
	"context"
	"fmt"
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/money"
)

// ApprovalStepType identifies one wallet interaction in the setup flow.
type ApprovalStepType string

const (
	// StepTokenApproval asks the wallet to approve the token for the
	// delegated spender contract. Done once per wallet.
	StepTokenApproval ApprovalStepType = "token_approval"
	// StepAllowanceSignature asks the wallet to sign the time-boxed
	// spending allowance itself.
	StepAllowanceSignature ApprovalStepType = "allowance_signature"
)

// ApprovalStep is one outstanding wallet interaction, with a prompt the
// client can show verbatim.
type ApprovalStep struct {
	Type   ApprovalStepType `json:"type"`
	Prompt string           `json:"prompt"`
}

// ApprovalPlan inspects on-chain state for the wallet and returns the
// ordered wallet interactions still required before delegated charges of the
// given size can succeed. An empty plan means the wallet is ready. The flow
// is resumable: a wallet that already approved the token but whose allowance
// lapsed gets only the signature step back.
func (e *Engine) ApprovalPlan(ctx context.Context, address string, required money.Micros) ([]ApprovalStep, error) {
	if e.chain == nil {
		return nil, fmt.Errorf("no chain reader configured")
	}

	var plan []ApprovalStep

	approved, err := e.chain.TokenApproved(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read token approval: %w", err)
	}
	if !approved {
		plan = append(plan, ApprovalStep{
			Type:   StepTokenApproval,
			Prompt: "Approve the payment token for delegated spending. This is a one-time on-chain transaction.",
		})
	}

	onchain, err := e.chain.Allowance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read on-chain allowance: %w", err)
	}
	if !allowanceLive(onchain, required, e.now()) {
		plan = append(plan, ApprovalStep{
			Type:   StepAllowanceSignature,
			Prompt: fmt.Sprintf("Sign a spending allowance of at least %s to cover upcoming charges.", required.String()),
		})
	}

	return plan, nil
}

// allowanceLive reports whether an on-chain allowance covers the amount at
// the given instant.
func allowanceLive(a *OnChainAllowance, amount money.Micros, now time.Time) bool {
	if a == nil {
		return false
	}
	if !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt) {
		return false
	}
	return a.Amount >= amount
}
