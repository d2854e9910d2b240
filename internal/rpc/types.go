package rpc

import (
	"encoding/json"
	"fmt"
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Well-known Solana JSON-RPC error codes
const (
	CodeBlockhashNotFound        = -32002 // preflight failure, message carries the cause
	CodeNodeUnhealthy            = -32005
	CodeTransactionPrecompile    = -32008
	CodeMinContextSlotNotReached = -32016
)

// StatusError is returned for non-200 HTTP responses
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.StatusCode == 429 {
		return "rate limited (429)"
	}
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// SignatureInfo represents a transaction signature from getSignaturesForAddress
type SignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	Err       interface{} `json:"err"`
	BlockTime int64       `json:"blockTime"`
}

// SignaturesResponse is the response from getSignaturesForAddress
type SignaturesResponse struct {
	Result []SignatureInfo `json:"result"`
	Error  *RPCError       `json:"error"`
}

// TokenAmount represents token balance information
type TokenAmount struct {
	Amount         string  `json:"amount"`
	Decimals       int     `json:"decimals"`
	UIAmountString string  `json:"uiAmountString"`
	UIAmount       float64 `json:"uiAmount"`
}

// TokenBalance represents a token balance entry
type TokenBalance struct {
	AccountIndex  int         `json:"accountIndex"`
	Mint          string      `json:"mint"`
	Owner         string      `json:"owner"`
	UITokenAmount TokenAmount `json:"uiTokenAmount"`
}

// TransactionMeta contains metadata about a transaction
type TransactionMeta struct {
	Err               interface{}    `json:"err"`
	Fee               uint64         `json:"fee"`
	PreBalances       []int64        `json:"preBalances"`
	PostBalances      []int64        `json:"postBalances"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

// AccountKey represents an account in a transaction
type AccountKey struct {
	Pubkey string `json:"pubkey"`
	Signer bool   `json:"signer"`
}

// TransactionMessage contains the transaction message
type TransactionMessage struct {
	AccountKeys []AccountKey `json:"accountKeys"`
}

// Transaction represents a parsed transaction
type Transaction struct {
	Signatures []string           `json:"signatures"`
	Message    TransactionMessage `json:"message"`
}

// TransactionResult contains the full transaction data
type TransactionResult struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction *Transaction     `json:"transaction"`
}

// TransactionResponse is the response from getTransaction
type TransactionResponse struct {
	Result *TransactionResult `json:"result"`
	Error  *RPCError          `json:"error"`
}
