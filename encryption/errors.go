package encryption

import usperrors "github.com/vaultcore/usp/errors"

// Sentinel errors for Service and KeyStore implementations.
var (
	// ErrKeyNotFound is returned when a context name has no key metadata
	// and the operation requires it to already exist (Decrypt, Rotate,
	// SetMinDecryptionVersion).
	ErrKeyNotFound = usperrors.New(usperrors.CodeNotFound, "encryption: key metadata not found", nil)

	// ErrVersionRetired is returned by Decrypt when the envelope's version
	// is below the key's current MinDecryptionVersion, per spec §4.2:
	// "rejects if version < minDecryptionVersion".
	ErrVersionRetired = usperrors.New(usperrors.CodeInvalidState, "encryption: ciphertext version retired by minDecryptionVersion", nil)

	// ErrConcurrentRotation is returned by Rotate/SetMinDecryptionVersion
	// when another caller updated the key's metadata between the read and
	// the write.
	ErrConcurrentRotation = usperrors.New(usperrors.CodeCasMismatch, "encryption: key metadata was modified concurrently", nil)
)
