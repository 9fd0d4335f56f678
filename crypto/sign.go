package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
)

// HashAlgorithm enumerates the digest algorithms transit/sign operations
// accept. Anything outside this set fails with NotSupported per spec §4.4.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha2-256"
	HashSHA512 HashAlgorithm = "sha2-512"
)

// Digest hashes data with the named algorithm.
func Digest(alg HashAlgorithm, data []byte) ([]byte, crypto.Hash, error) {
	switch alg {
	case HashSHA256:
		sum := sha256.Sum256(data)
		return sum[:], crypto.SHA256, nil
	case HashSHA512:
		sum := sha512.Sum512(data)
		return sum[:], crypto.SHA512, nil
	default:
		return nil, 0, fmt.Errorf("crypto: unsupported hash algorithm %q", alg)
	}
}

// KeyType enumerates the transit/KV key material types spec §3 names.
type KeyType string

const (
	KeyTypeAES256GCM KeyType = "aes256-gcm"
	KeyTypeRSA2048   KeyType = "rsa-2048"
	KeyTypeRSA4096   KeyType = "rsa-4096"
	KeyTypeECDSAP256 KeyType = "ecdsa-p256"
	KeyTypeEd25519   KeyType = "ed25519"
)

// IsAsymmetric reports whether the key type carries a distinct public key.
func (t KeyType) IsAsymmetric() bool {
	switch t {
	case KeyTypeRSA2048, KeyTypeRSA4096, KeyTypeECDSAP256, KeyTypeEd25519:
		return true
	}
	return false
}

// GenerateKeyMaterial creates new key material for the given type,
// returning the private-key-equivalent bytes to wrap with the master key
// and, for asymmetric types, the DER-or-raw-encoded public key.
func GenerateKeyMaterial(t KeyType) (private, public []byte, err error) {
	switch t {
	case KeyTypeAES256GCM:
		private, err = RandomBytes(KeySize)
		return private, nil, err
	case KeyTypeRSA2048, KeyTypeRSA4096:
		bits := 2048
		if t == KeyTypeRSA4096 {
			bits = 4096
		}
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, nil, fmt.Errorf("crypto: generating RSA key: %w", err)
		}
		priv, err := marshalRSAPrivate(key)
		if err != nil {
			return nil, nil, err
		}
		return priv, marshalRSAPublic(&key.PublicKey), nil
	case KeyTypeECDSAP256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("crypto: generating ECDSA key: %w", err)
		}
		priv, err := marshalECDSAPrivate(key)
		if err != nil {
			return nil, nil, err
		}
		return priv, marshalECDSAPublic(&key.PublicKey), nil
	case KeyTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("crypto: generating Ed25519 key: %w", err)
		}
		return priv, pub, nil
	default:
		return nil, nil, fmt.Errorf("crypto: unsupported key type %q", t)
	}
}

// Sign produces a raw signature over data's digest using the type-
// appropriate scheme: PKCS#1 v1.5 for RSA, DER ECDSA for P-256, raw
// 64-byte signatures for Ed25519.
func Sign(t KeyType, privateKey []byte, alg HashAlgorithm, data []byte) ([]byte, error) {
	switch t {
	case KeyTypeRSA2048, KeyTypeRSA4096:
		key, err := parseRSAPrivate(privateKey)
		if err != nil {
			return nil, err
		}
		digest, hash, err := Digest(alg, data)
		if err != nil {
			return nil, err
		}
		return rsa.SignPKCS1v15(rand.Reader, key, hash, digest)
	case KeyTypeECDSAP256:
		key, err := parseECDSAPrivate(privateKey)
		if err != nil {
			return nil, err
		}
		digest, _, err := Digest(alg, data)
		if err != nil {
			return nil, err
		}
		return ecdsa.SignASN1(rand.Reader, key, digest)
	case KeyTypeEd25519:
		if len(privateKey) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("crypto: invalid ed25519 private key size")
		}
		return ed25519.Sign(ed25519.PrivateKey(privateKey), data), nil
	default:
		return nil, fmt.Errorf("crypto: key type %q cannot sign", t)
	}
}

// Verify checks a signature produced by Sign against the public key.
func Verify(t KeyType, publicKey []byte, alg HashAlgorithm, data, sig []byte) (bool, error) {
	switch t {
	case KeyTypeRSA2048, KeyTypeRSA4096:
		key, err := parseRSAPublic(publicKey)
		if err != nil {
			return false, err
		}
		digest, hash, err := Digest(alg, data)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(key, hash, digest, sig) == nil, nil
	case KeyTypeECDSAP256:
		key, err := parseECDSAPublic(publicKey)
		if err != nil {
			return false, err
		}
		digest, _, err := Digest(alg, data)
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(key, digest, sig), nil
	case KeyTypeEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return false, fmt.Errorf("crypto: invalid ed25519 public key size")
		}
		return ed25519.Verify(ed25519.PublicKey(publicKey), data, sig), nil
	default:
		return false, fmt.Errorf("crypto: key type %q cannot verify", t)
	}
}
