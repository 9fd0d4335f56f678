package crypto

import (
	"crypto/rand"
	"fmt"
)

// MaxShares is the largest share count supported: x-coordinates are a
// single GF(2^8) byte, and 0 is reserved for the secret itself.
const MaxShares = 255

// Share is one point on the Shamir polynomial: a 1-byte x-coordinate
// (1..n) and the corresponding y-value for every byte of the secret.
type Share struct {
	X byte
	Y []byte
}

// Split divides secret into n shares such that any t of them reconstruct
// it via Lagrange interpolation at x=0, while any t-1 reveal nothing.
// One independent degree-(t-1) polynomial is generated per byte position
// of secret, with secret's byte as the constant term and random
// coefficients elsewhere.
func Split(secret []byte, n, t int) ([]Share, error) {
	if t < 1 || n < 1 || t > n || n > MaxShares {
		return nil, fmt.Errorf("crypto: invalid shamir parameters n=%d t=%d", n, t)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("crypto: empty secret")
	}

	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{X: byte(i + 1), Y: make([]byte, len(secret))}
	}

	coeffs := make([]byte, t)
	for byteIdx, secretByte := range secret {
		coeffs[0] = secretByte
		if _, err := rand.Read(coeffs[1:]); err != nil {
			return nil, fmt.Errorf("crypto: reading random coefficients: %w", err)
		}
		for _, s := range shares {
			shares[s.X-1].Y[byteIdx] = evalPoly(coeffs, s.X)
		}
	}
	return shares, nil
}

// evalPoly evaluates the polynomial with the given coefficients (low
// degree first) at x, in GF(2^8), via Horner's method.
func evalPoly(coeffs []byte, x byte) byte {
	result := byte(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = gf256Add(gf256Mul(result, x), coeffs[i])
	}
	return result
}

// Combine reconstructs the secret from a set of shares via Lagrange
// interpolation at x=0. Shares must all have distinct x-coordinates and
// equal-length y-values; callers are responsible for supplying at least
// the threshold used by Split, since Combine cannot itself detect an
// insufficient share count.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("crypto: no shares supplied")
	}
	length := len(shares[0].Y)
	seen := make(map[byte]bool, len(shares))
	for _, s := range shares {
		if len(s.Y) != length {
			return nil, fmt.Errorf("crypto: share length mismatch")
		}
		if seen[s.X] {
			return nil, fmt.Errorf("crypto: duplicate share x-coordinate %d", s.X)
		}
		seen[s.X] = true
	}

	secret := make([]byte, length)
	for byteIdx := 0; byteIdx < length; byteIdx++ {
		secret[byteIdx] = lagrangeAtZero(shares, byteIdx)
	}
	return secret, nil
}

// lagrangeAtZero evaluates the Lagrange interpolation polynomial built
// from shares at x=0 for the byte at byteIdx, in GF(2^8).
func lagrangeAtZero(shares []Share, byteIdx int) byte {
	result := byte(0)
	for i, si := range shares {
		basis := byte(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			// basis *= (0 - x_j) / (x_i - x_j) == x_j / (x_i XOR x_j) in GF(2^n)
			num := sj.X
			den := gf256Add(si.X, sj.X)
			basis = gf256Mul(basis, gf256Div(num, den))
		}
		result = gf256Add(result, gf256Mul(si.Y[byteIdx], basis))
	}
	return result
}

// EncodeShare serializes a share as the 33-byte blob spec §6 describes:
// 1 byte x-coordinate followed by the y-bytes.
func EncodeShare(s Share) []byte {
	out := make([]byte, 1+len(s.Y))
	out[0] = s.X
	copy(out[1:], s.Y)
	return out
}

// DecodeShare parses a share blob produced by EncodeShare.
func DecodeShare(b []byte) (Share, error) {
	if len(b) < 2 {
		return Share{}, fmt.Errorf("crypto: share blob too short")
	}
	y := make([]byte, len(b)-1)
	copy(y, b[1:])
	return Share{X: b[0], Y: y}, nil
}
