package crypto

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// Asymmetric key material is stored in standard PKCS#8/PKIX DER so it can
// round-trip through the x509 package without a bespoke format.

func marshalRSAPrivate(key *rsa.PrivateKey) ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(key)
}

func marshalRSAPublic(key *rsa.PublicKey) []byte {
	der, _ := x509.MarshalPKIXPublicKey(key)
	return der
}

func parseRSAPrivate(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing RSA private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("crypto: key material is not an RSA key")
	}
	return rsaKey, nil
}

func parseRSAPublic(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing RSA public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("crypto: key material is not an RSA public key")
	}
	return rsaKey, nil
}

func marshalECDSAPrivate(key *ecdsa.PrivateKey) ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(key)
}

func marshalECDSAPublic(key *ecdsa.PublicKey) []byte {
	der, _ := x509.MarshalPKIXPublicKey(key)
	return der
}

func parseECDSAPrivate(der []byte) (*ecdsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing ECDSA private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("crypto: key material is not an ECDSA key")
	}
	return ecKey, nil
}

func parseECDSAPublic(der []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing ECDSA public key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("crypto: key material is not an ECDSA public key")
	}
	return ecKey, nil
}

// PublicKeyFromPrivate extracts the DER-or-raw-encoded public key from
// private key material, used when TransitKeyVersion rows are reloaded
// and the public key needs recomputing (it normally is stored alongside,
// but this supports migration/repair paths).
func PublicKeyFromPrivate(t KeyType, private []byte) ([]byte, error) {
	switch t {
	case KeyTypeRSA2048, KeyTypeRSA4096:
		key, err := parseRSAPrivate(private)
		if err != nil {
			return nil, err
		}
		return marshalRSAPublic(&key.PublicKey), nil
	case KeyTypeECDSAP256:
		key, err := parseECDSAPrivate(private)
		if err != nil {
			return nil, err
		}
		return marshalECDSAPublic(&key.PublicKey), nil
	case KeyTypeEd25519:
		if len(private) != 64 {
			return nil, fmt.Errorf("crypto: invalid ed25519 private key size")
		}
		return private[32:], nil
	default:
		return nil, fmt.Errorf("crypto: key type %q has no public key", t)
	}
}
