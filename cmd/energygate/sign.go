package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/layer-3/energygate"
)

var (
	signKey    string
	signWallet string
	signUUID   string
	signNonce  string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print a signed ClientAuth for a challenge",
	Long: `Signs wallet:uuid:nonce with the given private key using personal-sign
and prints the resulting ClientAuth fields as JSON. Useful for testing
clients against a running gateway.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(signKey, "0x"))
		if err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}

		wallet := signWallet
		if wallet == "" {
			wallet = crypto.PubkeyToAddress(key.PublicKey).Hex()
		}

		claim, err := energygate.SignAuth(key, wallet, signUUID, signNonce)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"wallet": claim.Wallet,
			"uuid":   claim.UUID,
			"nonce":  claim.Nonce,
			"sign":   claim.Sign,
		})
	},
}

func init() {
	signCmd.Flags().StringVar(&signKey, "key", "", "hex-encoded secp256k1 private key")
	signCmd.Flags().StringVar(&signWallet, "wallet", "", "claimed wallet (default: the key's checksummed address)")
	signCmd.Flags().StringVar(&signUUID, "uuid", "", "challenge received in UUIDValidation")
	signCmd.Flags().StringVar(&signNonce, "nonce", "", "client-chosen nonce")
	_ = signCmd.MarkFlagRequired("key")
	_ = signCmd.MarkFlagRequired("uuid")
	_ = signCmd.MarkFlagRequired("nonce")
}
