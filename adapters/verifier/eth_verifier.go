package verifier

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

// EthVerifier recovers signers of EIP-191 personal messages
type EthVerifier struct{}

// NewEthVerifier creates a new verifier
func NewEthVerifier() ports.Verifier {
	return EthVerifier{}
}

// Recover returns the checksummed address that signed message. The signature
// is 65 bytes [R || S || V] with V in {0, 1, 27, 28}.
func (EthVerifier) Recover(message string, signature []byte) (string, error) {
	if len(signature) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrSignatureRecovery)
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", fmt.Errorf("invalid recovery id %d: %w", signature[crypto.RecoveryIDOffset], core.ErrSignatureRecovery)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", core.ErrSignatureRecovery)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// DecodeSignature decodes the 0x-prefixed hex signature carried on the wire
func DecodeSignature(sign string) ([]byte, error) {
	sig, err := hexutil.Decode(sign)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrSignatureRecovery)
	}
	return sig, nil
}

// Sign produces the personal-sign signature wallets return for message, with V
// in {27, 28}.
func Sign(message string, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
