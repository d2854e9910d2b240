package jupiter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type QuoteRequest struct {
	InputMint  string
	OutputMint string
	Amount     string // raw integer as string (uint64)

	SlippageBps *uint16
	SwapMode    string // ExactIn | ExactOut

	Dexes        []string
	ExcludeDexes []string

	RestrictIntermediateTokens *bool
	OnlyDirectRoutes           *bool
	AsLegacyTransaction        *bool

	PlatformFeeBps *uint16
	MaxAccounts    *uint64

	InstructionVersion string // V1 | V2
	DynamicSlippage    *bool
}

type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          uint16          `json:"slippageBps"`
	PlatformFee          *PlatformFee    `json:"platformFee,omitempty"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`

	ContextSlot uint64  `json:"contextSlot,omitempty"`
	TimeTaken   float64 `json:"timeTaken,omitempty"`
}

type PlatformFee struct {
	Amount string `json:"amount,omitempty"`
	FeeBps uint16 `json:"feeBps,omitempty"`
}

type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  *uint8   `json:"percent,omitempty"`
	Bps      uint16   `json:"bps"`
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label,omitempty"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`

	FeeAmount *string `json:"feeAmount,omitempty"`
	FeeMint   *string `json:"feeMint,omitempty"`
}

type SwapInstructionsRequest struct {
	UserPublicKey             string         `json:"userPublicKey"`
	QuoteResponse             *QuoteResponse `json:"quoteResponse"`
	WrapAndUnwrapSol          bool           `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction       bool           `json:"asLegacyTransaction,omitempty"`
	DynamicComputeUnitLimit   bool           `json:"dynamicComputeUnitLimit,omitempty"`
	PrioritizationFeeLamports *uint64        `json:"prioritizationFeeLamports,omitempty"`
}

type SwapInstructionsResponse struct {
	TokenLedgerInstruction      *Instruction  `json:"tokenLedgerInstruction,omitempty"`
	ComputeBudgetInstructions   []Instruction `json:"computeBudgetInstructions"`
	SetupInstructions           []Instruction `json:"setupInstructions"`
	SwapInstruction             *Instruction  `json:"swapInstruction"`
	CleanupInstruction          *Instruction  `json:"cleanupInstruction,omitempty"`
	OtherInstructions           []Instruction `json:"otherInstructions"`
	AddressLookupTableAddresses []string      `json:"addressLookupTableAddresses"`
	Error                       string        `json:"error,omitempty"`
}

// Instruction is a Jupiter-encoded instruction; Data is base64
type Instruction struct {
	ProgramID string        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      string        `json:"data"`
}

type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// PriceImpact parses PriceImpactPct, a fraction where 0.01 is 1%
func (q *QuoteResponse) PriceImpact() (decimal.Decimal, error) {
	s := strings.TrimSpace(q.PriceImpactPct)
	if s == "" {
		return decimal.Zero, errors.New("quote has no priceImpactPct")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid priceImpactPct %q: %w", q.PriceImpactPct, err)
	}
	return d.Abs(), nil
}
