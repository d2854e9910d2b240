package swapengine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/jupiter"
	"github.com/gagliardetto/solana-go"
)

// JupiterBuilder builds SOL -> token buys from Jupiter routes.
// Routes are requested as legacy transactions so no lookup tables are needed,
// and Jupiter's setup instructions take care of ATAs and SOL wrapping.
type JupiterBuilder struct {
	client      *jupiter.Client
	slippageBps uint16
}

func NewJupiterBuilder(client *jupiter.Client, slippageBps uint16) *JupiterBuilder {
	return &JupiterBuilder{client: client, slippageBps: slippageBps}
}

func (b *JupiterBuilder) BuildBuy(ctx context.Context, owner solana.PublicKey, mint string, lamports uint64) ([]solana.Instruction, error) {
	if lamports == 0 {
		return nil, fmt.Errorf("amount is zero")
	}
	legacy := true
	slippage := b.slippageBps

	quote, err := b.client.Quote(ctx, jupiter.QuoteRequest{
		InputMint:           constants.WrappedSOLMint,
		OutputMint:          mint,
		Amount:              strconv.FormatUint(lamports, 10),
		SlippageBps:         &slippage,
		SwapMode:            "ExactIn",
		AsLegacyTransaction: &legacy,
	})
	if err != nil {
		return nil, err
	}

	resp, err := b.client.SwapInstructions(ctx, jupiter.SwapInstructionsRequest{
		UserPublicKey:           owner.String(),
		QuoteResponse:           quote,
		WrapAndUnwrapSol:        true,
		AsLegacyTransaction:     true,
		DynamicComputeUnitLimit: true,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.AddressLookupTableAddresses) > 0 {
		return nil, fmt.Errorf("route needs %d address lookup tables", len(resp.AddressLookupTableAddresses))
	}
	if resp.SwapInstruction == nil {
		return nil, fmt.Errorf("response has no swap instruction")
	}

	raw := make([]jupiter.Instruction, 0, len(resp.ComputeBudgetInstructions)+len(resp.SetupInstructions)+3)
	raw = append(raw, resp.ComputeBudgetInstructions...)
	raw = append(raw, resp.SetupInstructions...)
	if resp.TokenLedgerInstruction != nil {
		raw = append(raw, *resp.TokenLedgerInstruction)
	}
	raw = append(raw, *resp.SwapInstruction)
	if resp.CleanupInstruction != nil {
		raw = append(raw, *resp.CleanupInstruction)
	}
	raw = append(raw, resp.OtherInstructions...)

	ixs := make([]solana.Instruction, 0, len(raw))
	for i, ix := range raw {
		decoded, err := decodeInstruction(ix)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		ixs = append(ixs, decoded)
	}
	return ixs, nil
}

func decodeInstruction(ix jupiter.Instruction) (solana.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(ix.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(ix.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	metas := make(solana.AccountMetaSlice, 0, len(ix.Accounts))
	for _, a := range ix.Accounts {
		pk, err := solana.PublicKeyFromBase58(a.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.Pubkey, err)
		}
		metas = append(metas, solana.NewAccountMeta(pk, a.IsWritable, a.IsSigner))
	}
	return solana.NewInstruction(programID, metas, data), nil
}
