package engine

import (
	"context"
	"encoding/base64"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/model"
)

// SolanaClient implements SolanaBackend: it signs the base64 transaction the
// swap API built and submits it over RPC.
type SolanaClient struct {
	PrivateKey   solana.PrivateKey
	RPCURL       string
	PollInterval time.Duration
	PollAttempts int

	client *rpc.Client
}

func NewSolanaClient(key solana.PrivateKey, rpcURL string) *SolanaClient {
	return &SolanaClient{
		PrivateKey:   key,
		RPCURL:       ResolveSolanaRPCURL(rpcURL),
		PollInterval: 2 * time.Second,
		PollAttempts: 20,
	}
}

func (c *SolanaClient) rpcClient() *rpc.Client {
	if c.client == nil {
		c.client = rpc.New(c.RPCURL)
	}
	return c.client
}

func (c *SolanaClient) SignAndSend(ctx context.Context, payload model.SolanaPayload) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload.SwapTransaction)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "decode swap transaction", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "deserialize swap transaction", err)
	}

	owner := c.PrivateKey.PublicKey()
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &c.PrivateKey
		}
		return nil
	}); err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign swap transaction", err)
	}

	sig, err := c.rpcClient().SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "send swap transaction", err)
	}
	return sig.String(), nil
}

// WaitConfirmation polls signature status until the transaction confirms or
// the attempt limit is reached.
func (c *SolanaClient) WaitConfirmation(ctx context.Context, signature string) (bool, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return false, clierr.Wrap(clierr.CodeUsage, "parse signature", err)
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	attempts := c.PollAttempts
	if attempts <= 0 {
		attempts = 20
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return false, clierr.Wrap(clierr.CodeTimeout, "confirmation wait cancelled", ctx.Err())
		case <-ticker.C:
		}

		statuses, err := c.rpcClient().GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			continue
		}
		if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
			continue
		}
		status := statuses.Value[0]
		if status.Err != nil {
			return true, nil
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return false, nil
		}
	}
	return false, clierr.New(clierr.CodeTimeout, "transaction not confirmed within the polling window")
}
