package wallet

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/providers"
)

const (
	EnvPrivateKey           = "SWAPFLOW_EVM_PRIVATE_KEY"
	EnvPrivateKeyFile       = "SWAPFLOW_EVM_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "SWAPFLOW_KEYSTORE_PATH"
	EnvKeystorePassword     = "SWAPFLOW_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "SWAPFLOW_KEYSTORE_PASSWORD_FILE"

	// eip712SignatureType is the wire value the gasless submit endpoint
	// expects for an EIP-712 signature.
	eip712SignatureType = 2
)

// LocalWallet holds a plaintext ECDSA key loaded from the environment, a key
// file, or an encrypted keystore. It signs both raw transactions and EIP-712
// typed data.
type LocalWallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (w *LocalWallet) Address() common.Address {
	return w.address
}

func (w *LocalWallet) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if w == nil || w.privateKey == nil {
		return nil, clierr.New(clierr.CodeSigner, "wallet is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, w.privateKey)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	return signed, nil
}

// SignTypedData hashes the EIP-712 document and signs it, returning the
// split signature the gasless submit endpoint expects.
func (w *LocalWallet) SignTypedData(doc json.RawMessage) (providers.TypedSignature, error) {
	if w == nil || w.privateKey == nil {
		return providers.TypedSignature{}, clierr.New(clierr.CodeSigner, "wallet is not initialized")
	}
	var typed apitypes.TypedData
	if err := json.Unmarshal(doc, &typed); err != nil {
		return providers.TypedSignature{}, clierr.Wrap(clierr.CodeUsage, "decode typed data", err)
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return providers.TypedSignature{}, clierr.Wrap(clierr.CodeSigner, "hash typed data", err)
	}
	sig, err := crypto.Sign(digest, w.privateKey)
	if err != nil {
		return providers.TypedSignature{}, clierr.Wrap(clierr.CodeSigner, "sign typed data", err)
	}
	return providers.TypedSignature{
		R:             hexutil.Encode(sig[:32]),
		S:             hexutil.Encode(sig[32:64]),
		V:             int(sig[64]) + 27,
		SignatureType: eip712SignatureType,
	}, nil
}

type Config struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

// ConfigFromEnv reads every key source from the environment. Precedence is
// resolved in NewLocalWallet: inline hex, then key file, then keystore.
func ConfigFromEnv() Config {
	return Config{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	}
}

func NewLocalWallet(cfg Config) (*LocalWallet, error) {
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, clierr.New(clierr.CodeSigner, "invalid ECDSA public key")
	}
	return &LocalWallet{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func loadPrivateKey(cfg Config) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(cfg.PrivateKeyHex) != "" {
		return parseHexKey(cfg.PrivateKeyHex)
	}
	if strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "read private key file", err)
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		password := cfg.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(cfg.KeystorePasswordFile)
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeSigner, "read keystore password file", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, clierr.New(clierr.CodeSigner, "keystore password is required")
		}
		buf, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "read keystore file", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "decrypt keystore", err)
		}
		return key.PrivateKey, nil
	}
	return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("missing signing key: set %s or %s or %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath))
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return nil, clierr.New(clierr.CodeSigner, "empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "parse private key", err)
	}
	return pk, nil
}
