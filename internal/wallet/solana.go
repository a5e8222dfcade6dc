package wallet

import (
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	clierr "github.com/nmorales94/swapflow/internal/errors"
)

const (
	EnvSolanaPrivateKey     = "SWAPFLOW_SOLANA_PRIVATE_KEY"
	EnvSolanaPrivateKeyFile = "SWAPFLOW_SOLANA_PRIVATE_KEY_FILE"
)

// LoadSolanaKey reads a base58 Solana private key from the environment or a
// solana-keygen JSON file.
func LoadSolanaKey() (solana.PrivateKey, error) {
	if raw := strings.TrimSpace(os.Getenv(EnvSolanaPrivateKey)); raw != "" {
		key, err := solana.PrivateKeyFromBase58(raw)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "parse solana private key", err)
		}
		return key, nil
	}
	if path := strings.TrimSpace(os.Getenv(EnvSolanaPrivateKeyFile)); path != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "read solana key file", err)
		}
		return key, nil
	}
	return nil, clierr.New(clierr.CodeSigner, "missing solana key: set "+EnvSolanaPrivateKey+" or "+EnvSolanaPrivateKeyFile)
}
