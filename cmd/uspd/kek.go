package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/vaultcore/usp/authn"
	"github.com/vaultcore/usp/seal"
)

// localKEKFromHex decodes a hex-encoded 32-byte key-encryption key from
// USPD_LOCAL_KEK_HEX, for deployments with no KMS configured (spec §1's
// KMS/HSM Non-goal names this as the expected default posture).
func localKEKFromHex(hexKEK string) (*seal.LocalKEKProvider, error) {
	if hexKEK == "" {
		return nil, fmt.Errorf("either USPD_KMS_KEY_ID or USPD_LOCAL_KEK_HEX must be set")
	}
	raw, err := hex.DecodeString(hexKEK)
	if err != nil {
		return nil, fmt.Errorf("decoding USPD_LOCAL_KEK_HEX: %w", err)
	}
	return seal.NewLocalKEKProvider(raw)
}

// buildJWTSigner constructs the access-token signer per cfg.jwtAlgorithm
// (spec §4.6 item 5, "HS256 or RS256 per configuration"). loadConfig's
// uspconfig.ValidateServiceConfig call has already confirmed the
// relevant key material is present (and, for HS256, long enough);
// the RS256 PEM is parsed here for the first time.
func buildJWTSigner(cfg *config) (*authn.JWTSigner, error) {
	switch cfg.jwtAlgorithm {
	case "RS256":
		block, _ := pem.Decode(cfg.jwtKeyPEM)
		if block == nil {
			return nil, fmt.Errorf("USPD_JWT_RSA_KEY_PEM is not valid PEM")
		}
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return authn.NewRS256Signer(cfg.jwtIssuer, key), nil
		}
		keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing RSA private key: %w", err)
		}
		rsaKey, ok := keyAny.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("USPD_JWT_RSA_KEY_PEM does not contain an RSA private key")
		}
		return authn.NewRS256Signer(cfg.jwtIssuer, rsaKey), nil
	default:
		return authn.NewHS256Signer(cfg.jwtIssuer, cfg.jwtSecret), nil
	}
}
