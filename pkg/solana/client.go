// Package solana provides wallet loading, balance checks and transaction
// submission against a Solana RPC node.
package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/jupiter"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultConfirmTimeout = 60 * time.Second
	finalStatusTimeout    = 5 * time.Second
)

// ErrTransactionFailed is returned when a confirmed transaction carries an error.
var ErrTransactionFailed = errors.New("transaction failed")

// Client wraps the Solana RPC client.
type Client struct {
	rpc            *rpc.Client
	rpcURL         string
	wrapUnwrapSOL  bool
	pollInterval   time.Duration
	confirmTimeout time.Duration
	wsTimeout      time.Duration
	subscriber     *SignatureSubscriber
}

// ClientConfig contains configuration for the Solana client.
type ClientConfig struct {
	RPCURL         string // Solana RPC endpoint
	WSURL          string // Optional: websocket endpoint for signature subscriptions
	WrapUnwrapSOL  bool   // Treat the wrapped SOL mint as native lamports
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	// Share of ConfirmTimeout spent on the subscription before polling.
	// Defaults to half of it.
	SubscribeTimeout time.Duration
}

// NewClient creates a new Solana client.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = &ClientConfig{}
	}

	rpcURL := config.RPCURL
	if rpcURL == "" {
		rpcURL = rpc.MainNetBeta_RPC
	}

	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	confirmTimeout := config.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = defaultConfirmTimeout
	}

	wsTimeout := config.SubscribeTimeout
	if wsTimeout <= 0 || wsTimeout > confirmTimeout {
		wsTimeout = confirmTimeout / 2
	}

	c := &Client{
		rpc:            rpc.New(rpcURL),
		rpcURL:         rpcURL,
		wrapUnwrapSOL:  config.WrapUnwrapSOL,
		pollInterval:   pollInterval,
		confirmTimeout: confirmTimeout,
		wsTimeout:      wsTimeout,
	}
	if config.WSURL != "" {
		c.subscriber = NewSignatureSubscriber(config.WSURL)
	}
	return c
}

// BalanceOf returns the wallet balance of an asset in base units.
func (c *Client) BalanceOf(ctx context.Context, asset types.Asset, wallet types.Wallet) (uint64, error) {
	owner := wallet.PublicKey()

	if c.wrapUnwrapSOL && asset.Address == jupiter.SOLMint {
		balance, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		if err != nil {
			return 0, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance.Value, nil
	}

	mint, err := solana.PublicKeyFromBase58(asset.Address)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address: %w", err)
	}

	accounts, err := c.rpc.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{
			Mint: &mint,
		},
		&rpc.GetTokenAccountsOpts{
			Encoding: solana.EncodingJSONParsed,
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to get token accounts: %w", err)
	}

	// Sum the raw amounts of every account holding this mint.
	var total uint64
	for _, account := range accounts.Value {
		if account == nil || account.Account.Data == nil || account.Account.Data.GetRawJSON() == nil {
			continue
		}
		amount, err := parseTokenAccountAmount(account.Account.Data.GetRawJSON())
		if err != nil {
			return 0, err
		}
		total += amount
	}

	return total, nil
}

// parseTokenAccountAmount extracts the raw base-unit amount from a jsonParsed token account.
func parseTokenAccountAmount(raw []byte) (uint64, error) {
	var parsed struct {
		Parsed struct {
			Info struct {
				TokenAmount struct {
					Amount string `json:"amount"`
				} `json:"tokenAmount"`
			} `json:"info"`
		} `json:"parsed"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse token account: %w", err)
	}
	if parsed.Parsed.Info.TokenAmount.Amount == "" {
		return 0, nil
	}
	amount, err := strconv.ParseUint(parsed.Parsed.Info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", parsed.Parsed.Info.TokenAmount.Amount, err)
	}
	return amount, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// ConfirmTransaction waits until the signature reaches confirmed commitment.
// The websocket subscription, when configured, gets part of the deadline and
// polling covers the rest. The status is read once more before a timeout is
// reported.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	if c.subscriber != nil {
		wsCtx, wsCancel := context.WithTimeout(ctx, c.wsTimeout)
		err := c.subscriber.WaitForSignature(wsCtx, sig.String())
		wsCancel()
		if err == nil || errors.Is(err, ErrTransactionFailed) {
			return err
		}
		log.Debug().Err(err).Str("signature", sig.String()).Msg("signature subscription gave up, polling")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		confirmed, err := c.checkSignatureStatus(ctx, sig)
		if err != nil && errors.Is(err, ErrTransactionFailed) {
			return err
		}
		if confirmed {
			return nil
		}

		select {
		case <-ctx.Done():
			return c.finalStatus(parent, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// finalStatus reads the signature status on a fresh deadline so a landed
// transaction is never reported as timed out.
func (c *Client) finalStatus(parent context.Context, sig solana.Signature, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), finalStatusTimeout)
	defer cancel()

	confirmed, err := c.checkSignatureStatus(ctx, sig)
	if err != nil && errors.Is(err, ErrTransactionFailed) {
		return err
	}
	if confirmed {
		return nil
	}
	return fmt.Errorf("transaction confirmation timeout: %w", cause)
}

// checkSignatureStatus reports whether the signature is confirmed or finalized.
func (c *Client) checkSignatureStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return false, fmt.Errorf("failed to get signature status: %w", err)
	}

	if len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return false, nil
	}

	status := statuses.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	}

	return status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized, nil
}

// TransferAmounts is the realized movement of the two swapped mints.
type TransferAmounts struct {
	Spent    uint64
	Received uint64
	Slot     uint64
}

// GetTransferAmounts reads the confirmed transaction meta and returns how much
// of inputMint the owner spent and how much of outputMint it received.
func (c *Client) GetTransferAmounts(ctx context.Context, sig solana.Signature, owner solana.PublicKey, inputMint, outputMint string) (*TransferAmounts, error) {
	maxVersion := uint64(0)
	result, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if result == nil || result.Meta == nil {
		return nil, fmt.Errorf("transaction meta not available")
	}
	meta := result.Meta

	spent, err := c.mintDelta(meta, owner, inputMint)
	if err != nil {
		return nil, err
	}
	received, err := c.mintDelta(meta, owner, outputMint)
	if err != nil {
		return nil, err
	}

	return &TransferAmounts{
		Spent:    uint64(max(-spent, 0)),
		Received: uint64(max(received, 0)),
		Slot:     result.Slot,
	}, nil
}

// mintDelta returns post minus pre balance of a mint held by owner.
func (c *Client) mintDelta(meta *rpc.TransactionMeta, owner solana.PublicKey, mint string) (int64, error) {
	if c.wrapUnwrapSOL && mint == jupiter.SOLMint {
		// The fee payer is always account 0; add the fee back so it is not counted as swap flow.
		if len(meta.PreBalances) == 0 || len(meta.PostBalances) == 0 {
			return 0, fmt.Errorf("transaction meta has no lamport balances")
		}
		return int64(meta.PostBalances[0]) - int64(meta.PreBalances[0]) + int64(meta.Fee), nil
	}

	pre, err := sumTokenBalances(meta.PreTokenBalances, owner, mint)
	if err != nil {
		return 0, err
	}
	post, err := sumTokenBalances(meta.PostTokenBalances, owner, mint)
	if err != nil {
		return 0, err
	}
	return int64(post) - int64(pre), nil
}

func sumTokenBalances(balances []rpc.TokenBalance, owner solana.PublicKey, mint string) (uint64, error) {
	var total uint64
	for _, b := range balances {
		if b.Owner == nil || !b.Owner.Equals(owner) || b.Mint.String() != mint || b.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid token amount %q: %w", b.UiTokenAmount.Amount, err)
		}
		total += amount
	}
	return total, nil
}

// IsValidAddress validates a Solana address (Base58 public key).
func IsValidAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}
