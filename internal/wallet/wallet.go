package wallet

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	projectrpc "github.com/aman-zulfiqar/solana-copy-trader/internal/rpc"
	"github.com/gagliardetto/solana-go"
)

// SendOptions configures transaction sending behavior
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *int
}

// DefaultSendOptions returns recommended send settings.
// Node-side rebroadcast is disabled; the executor owns resubmission.
func DefaultSendOptions() SendOptions {
	maxRetries := 0
	return SendOptions{
		SkipPreflight:       false,
		PreflightCommitment: "processed",
		MaxRetries:          &maxRetries,
	}
}

// BlockhashInfo is a recent blockhash and the last block height at which a
// transaction referencing it can still land.
type BlockhashInfo struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	FetchedAt            time.Time
}

type ConfirmStatus string

const (
	ConfirmLanded  ConfirmStatus = "landed"
	ConfirmExpired ConfirmStatus = "expired"
	ConfirmFailed  ConfirmStatus = "failed" // landed with an on-chain error
)

// ConfirmResult is the final state of a confirmation wait
type ConfirmResult struct {
	Status ConfirmStatus
	Slot   uint64
	Err    string
}

// SignTx signs a transaction with the wallet's private key.
// Existing signatures are dropped first so a transaction can be re-signed
// after its blockhash was replaced.
func (w *Wallet) SignTx(tx *solana.Transaction) error {
	tx.Signatures = nil
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.pub) {
			return &w.priv
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

// SendTx broadcasts a signed transaction. Node rejections are returned
// wrapping *rpc.RPCError.
func (w *Wallet) SendTx(ctx context.Context, tx *solana.Transaction, opts *SendOptions) (string, error) {
	if opts == nil {
		defaultOpts := DefaultSendOptions()
		defaultOpts.SkipPreflight = w.cfg.SkipPreflight
		defaultOpts.PreflightCommitment = w.cfg.PreflightCommitment
		opts = &defaultOpts
	}

	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	params := []any{
		base64.StdEncoding.EncodeToString(txBytes),
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       opts.SkipPreflight,
			"preflightCommitment": opts.PreflightCommitment,
		},
	}

	if opts.MaxRetries != nil {
		params[1].(map[string]any)["maxRetries"] = *opts.MaxRetries
	}

	var resp struct {
		Result string               `json:"result"`
		Error  *projectrpc.RPCError `json:"error"`
	}

	if err := w.rpc.Call(ctx, "sendTransaction", params, &resp); err != nil {
		return "", fmt.Errorf("sendTransaction RPC failed: %w", err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("sendTransaction error (code %d): %w", resp.Error.Code, resp.Error)
	}

	return resp.Result, nil
}

// GetLatestBlockhashInfo fetches the most recent blockhash at the wallet's
// commitment together with its last valid block height
func (w *Wallet) GetLatestBlockhashInfo(ctx context.Context) (BlockhashInfo, error) {
	var resp struct {
		Result struct {
			Value struct {
				Blockhash            string `json:"blockhash"`
				LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
			} `json:"value"`
		} `json:"result"`
		Error *projectrpc.RPCError `json:"error"`
	}

	params := []any{
		map[string]any{"commitment": w.cfg.DefaultCommitment},
	}

	if err := w.rpc.Call(ctx, "getLatestBlockhash", params, &resp); err != nil {
		return BlockhashInfo{}, fmt.Errorf("getLatestBlockhash failed: %w", err)
	}

	if resp.Error != nil {
		return BlockhashInfo{}, fmt.Errorf("getLatestBlockhash error: %w", resp.Error)
	}

	hash, err := solana.HashFromBase58(resp.Result.Value.Blockhash)
	if err != nil {
		return BlockhashInfo{}, fmt.Errorf("invalid blockhash format: %w", err)
	}

	return BlockhashInfo{
		Blockhash:            hash,
		LastValidBlockHeight: resp.Result.Value.LastValidBlockHeight,
		FetchedAt:            time.Now(),
	}, nil
}

// Confirm polls until the signature reaches the wallet's commitment, lands
// with an error, or the block height passes info.LastValidBlockHeight.
// Transient RPC failures keep polling; only ctx ends the wait with an error.
func (w *Wallet) Confirm(ctx context.Context, signature string, info BlockhashInfo) (*ConfirmResult, error) {
	backoff := w.cfg.ConfirmPollInterval
	maxBackoff := w.cfg.ConfirmMaxPollInterval

	for {
		if res := w.pollStatus(ctx, signature); res != nil {
			return res, nil
		}

		height, err := w.getBlockHeight(ctx)
		if err != nil {
			w.logger.WithError(err).WithField("signature", signature).Debug("getBlockHeight failed")
		} else if height > info.LastValidBlockHeight {
			// The transaction may have landed right before the last check.
			if res := w.pollStatus(ctx, signature); res != nil {
				return res, nil
			}
			return &ConfirmResult{Status: ConfirmExpired}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// pollStatus returns a final result, or nil while the signature is pending
func (w *Wallet) pollStatus(ctx context.Context, signature string) *ConfirmResult {
	st, err := w.signatureStatus(ctx, signature)
	if err != nil {
		w.logger.WithError(err).WithField("signature", signature).Debug("getSignatureStatuses failed")
		return nil
	}
	if st == nil {
		return nil
	}
	if st.Err != nil {
		return &ConfirmResult{Status: ConfirmFailed, Slot: st.Slot, Err: fmt.Sprintf("%v", st.Err)}
	}
	if commitmentReached(st.ConfirmationStatus, w.cfg.DefaultCommitment) {
		return &ConfirmResult{Status: ConfirmLanded, Slot: st.Slot}
	}
	return nil
}

type sigStatus struct {
	Slot               uint64 `json:"slot"`
	Confirmations      *int   `json:"confirmations"`
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

// signatureStatus returns nil while the signature is unknown to the node
func (w *Wallet) signatureStatus(ctx context.Context, signature string) (*sigStatus, error) {
	var resp struct {
		Result struct {
			Value []*sigStatus `json:"value"`
		} `json:"result"`
		Error *projectrpc.RPCError `json:"error"`
	}

	params := []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}

	if err := w.rpc.Call(ctx, "getSignatureStatuses", params, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("getSignatureStatuses error: %w", resp.Error)
	}

	if len(resp.Result.Value) == 0 || resp.Result.Value[0] == nil {
		return nil, nil
	}
	return resp.Result.Value[0], nil
}

func (w *Wallet) getBlockHeight(ctx context.Context) (uint64, error) {
	var resp struct {
		Result uint64               `json:"result"`
		Error  *projectrpc.RPCError `json:"error"`
	}

	params := []any{
		map[string]any{"commitment": w.cfg.DefaultCommitment},
	}

	if err := w.rpc.Call(ctx, "getBlockHeight", params, &resp); err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("getBlockHeight error: %w", resp.Error)
	}
	return resp.Result, nil
}

func commitmentReached(status, commitment string) bool {
	switch commitment {
	case "processed":
		return status != ""
	case "confirmed":
		return status == "confirmed" || status == "finalized"
	case "finalized":
		return status == "finalized"
	default:
		return status != ""
	}
}
