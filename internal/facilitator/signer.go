// Package facilitator implements the verify/settle/supported surface consumed
// by the gateway's settlement client. Each ledger family gets a signing client
// built once from operator-held key material; a family without key material is
// simply absent from the supported list.
package facilitator

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"

	"github.com/porus-labs/porus/internal/x402"
)

// Signer is a family-specific signing client.
type Signer interface {
	// Address is the operator account settling for this family.
	Address() string
	// SettlementID signs the accepted payment payload and derives the
	// settlement identifier reported back to the gateway.
	SettlementID(payload x402.PaymentPayload) (string, error)
}

type evmSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewEVMSigner parses a hex-encoded secp256k1 private key.
func NewEVMSigner(hexKey string) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse EVM private key: %w", err)
	}
	return &evmSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

func (s *evmSigner) Address() string { return s.address }

func (s *evmSigner) SettlementID(payload x402.PaymentPayload) (string, error) {
	auth := payload.Payload.Authorization
	digest := crypto.Keccak256(
		[]byte(payload.Payload.Signature),
		[]byte(auth.From),
		[]byte(auth.To),
		[]byte(auth.Value),
		[]byte(auth.Nonce),
	)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("sign settlement digest: %w", err)
	}
	return hexutil.Encode(crypto.Keccak256(sig)), nil
}

type svmSigner struct {
	key solana.PrivateKey
}

// NewSVMSigner parses a base58-encoded ed25519 private key.
func NewSVMSigner(b58Key string) (Signer, error) {
	key, err := solana.PrivateKeyFromBase58(b58Key)
	if err != nil {
		return nil, fmt.Errorf("parse SVM private key: %w", err)
	}
	return &svmSigner{key: key}, nil
}

func (s *svmSigner) Address() string { return s.key.PublicKey().String() }

func (s *svmSigner) SettlementID(payload x402.PaymentPayload) (string, error) {
	auth := payload.Payload.Authorization
	msg := []byte(payload.Payload.Signature + auth.From + auth.To + auth.Value + auth.Nonce)
	sig, err := s.key.Sign(msg)
	if err != nil {
		return "", fmt.Errorf("sign settlement message: %w", err)
	}
	return sig.String(), nil
}
