package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/shopspring/decimal"
)

// ErrInvalidPayload is returned when a notification body is absent, empty, or
// neither a transaction object nor an array of them.
var ErrInvalidPayload = errors.New("invalid payload")

// DroppedEntry records why one entry of a batch was skipped.
type DroppedEntry struct {
	Index  int
	Reason string
}

// Batch is the result of normalizing one delivery.
type Batch struct {
	Events  []models.TransactionEvent
	Dropped []DroppedEntry
}

// NormalizeJSON decodes a raw notification body and normalizes it.
func NormalizeJSON(body []byte) (*Batch, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidPayload)
	}
	return Normalize(payload)
}

// Normalize converts a decoded notification (one object or an array of
// objects) into TransactionEvents. Malformed entries are dropped one by one so
// that valid siblings in the same batch still get processed.
func Normalize(payload any) (*Batch, error) {
	var entries []any

	switch v := payload.(type) {
	case nil:
		return nil, fmt.Errorf("%w: payload is absent", ErrInvalidPayload)
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty array", ErrInvalidPayload)
		}
		entries = v
	case map[string]any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty object", ErrInvalidPayload)
		}
		entries = []any{v}
	default:
		return nil, fmt.Errorf("%w: unexpected payload type %T", ErrInvalidPayload, payload)
	}

	batch := &Batch{Events: make([]models.TransactionEvent, 0, len(entries))}
	for i, entry := range entries {
		ev, err := normalizeEntry(entry)
		if err != nil {
			batch.Dropped = append(batch.Dropped, DroppedEntry{Index: i, Reason: err.Error()})
			continue
		}
		batch.Events = append(batch.Events, ev)
	}
	return batch, nil
}

func normalizeEntry(entry any) (models.TransactionEvent, error) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return models.TransactionEvent{}, fmt.Errorf("entry is %T, not an object", entry)
	}

	sig, _ := obj["signature"].(string)
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return models.TransactionEvent{}, errors.New("missing signature")
	}

	ev := models.TransactionEvent{
		Signature: sig,
		Type:      strings.ToUpper(strings.TrimSpace(stringField(obj, "type"))),
		Source:    stringField(obj, "source"),
		FeePayer:  stringField(obj, "feePayer"),
	}

	if raw, ok := obj["slot"]; ok && raw != nil {
		slot, err := toUint64(raw)
		if err != nil {
			return models.TransactionEvent{}, fmt.Errorf("slot: %w", err)
		}
		ev.Slot = slot
	}
	if raw, ok := obj["timestamp"]; ok && raw != nil {
		ts, err := toUint64(raw)
		if err != nil {
			return models.TransactionEvent{}, fmt.Errorf("timestamp: %w", err)
		}
		ev.Timestamp = time.Unix(int64(ts), 0).UTC()
	}

	natives, err := listField(obj, "nativeTransfers")
	if err != nil {
		return models.TransactionEvent{}, err
	}
	for i, raw := range natives {
		nt, err := nativeTransfer(raw)
		if err != nil {
			return models.TransactionEvent{}, fmt.Errorf("nativeTransfers[%d]: %w", i, err)
		}
		ev.NativeTransfers = append(ev.NativeTransfers, nt)
	}

	tokens, err := listField(obj, "tokenTransfers")
	if err != nil {
		return models.TransactionEvent{}, err
	}
	for i, raw := range tokens {
		tt, err := tokenTransfer(raw)
		if err != nil {
			return models.TransactionEvent{}, fmt.Errorf("tokenTransfers[%d]: %w", i, err)
		}
		ev.TokenTransfers = append(ev.TokenTransfers, tt)
	}

	return ev, nil
}

func nativeTransfer(raw any) (models.NativeTransfer, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return models.NativeTransfer{}, errors.New("not an object")
	}
	amount, err := toUint64(obj["amount"])
	if err != nil {
		return models.NativeTransfer{}, fmt.Errorf("amount: %w", err)
	}
	return models.NativeTransfer{
		FromUserAccount: stringField(obj, "fromUserAccount"),
		ToUserAccount:   stringField(obj, "toUserAccount"),
		Amount:          amount,
	}, nil
}

func tokenTransfer(raw any) (models.TokenTransfer, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return models.TokenTransfer{}, errors.New("not an object")
	}
	mint := stringField(obj, "mint")
	if mint == "" {
		return models.TokenTransfer{}, errors.New("missing mint")
	}
	amount, err := toDecimal(obj["tokenAmount"])
	if err != nil {
		return models.TokenTransfer{}, fmt.Errorf("tokenAmount: %w", err)
	}
	return models.TokenTransfer{
		Mint:            mint,
		FromUserAccount: stringField(obj, "fromUserAccount"),
		ToUserAccount:   stringField(obj, "toUserAccount"),
		TokenAmount:     amount,
	}, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// listField returns the array under key; a missing or null key is an empty list.
func listField(obj map[string]any, key string) ([]any, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s is %T, not an array", key, raw)
	}
	return list, nil
}

func toUint64(raw any) (uint64, error) {
	switch v := raw.(type) {
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case string:
		return strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= 1<<64 {
			return 0, fmt.Errorf("not a non-negative integer: %v", v)
		}
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value: %d", v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value: %d", v)
		}
		return uint64(v), nil
	case uint64:
		return v, nil
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

func toDecimal(raw any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case nil:
		return decimal.Zero, errors.New("missing")
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", raw)
	}
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", d)
	}
	return d, nil
}
