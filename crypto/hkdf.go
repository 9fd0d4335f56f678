package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// DeriveKey derives a purpose-scoped subkey from the master key via
// HKDF-SHA256 (RFC 5869), used to mint internal keys such as
// secret-encryption-key and audit-encryption-key from the single
// unsealed master key without persisting them separately.
func DeriveKey(masterKey []byte, info string, length int) ([]byte, error) {
	if length <= 0 || length > 255*sha256.Size {
		return nil, fmt.Errorf("crypto: invalid derived key length %d", length)
	}
	prk := hkdfExtract(nil, masterKey)
	return hkdfExpand(prk, []byte(info), length)
}

func hkdfExtract(salt, ikm []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, sha256.Size)
	}
	mac := hmac.New(sha256.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

func hkdfExpand(prk, info []byte, length int) ([]byte, error) {
	hashLen := sha256.Size
	n := (length + hashLen - 1) / hashLen
	if n > 255 {
		return nil, fmt.Errorf("crypto: hkdf expand length too large")
	}
	var t, okm []byte
	for i := 1; i <= n; i++ {
		mac := hmac.New(sha256.New, prk)
		mac.Write(t)
		mac.Write(info)
		mac.Write([]byte{byte(i)})
		t = mac.Sum(nil)
		okm = append(okm, t...)
	}
	return okm[:length], nil
}

// HMACSHA256 computes the HMAC-SHA256 of data under key.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
