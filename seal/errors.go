package seal

import usperrors "github.com/vaultcore/usp/errors"

// Sentinel errors for Manager and ConfigStore implementations. These are
// built on usperrors.New so every failure carries the closed taxonomy
// code of spec §7; they remain usable with errors.Is/errors.As since
// each is still a single package-level value.
var (
	// ErrNotInitialized is returned when an operation requires a SealConfig
	// that has not been created yet via Init.
	ErrNotInitialized = usperrors.New(usperrors.CodeNotInitialized, "seal: not initialized", nil)

	// ErrAlreadyInitialized is returned by Init when a SealConfig already exists.
	ErrAlreadyInitialized = usperrors.New(usperrors.CodeAlreadyInitialized, "seal: already initialized", nil)

	// ErrAlreadyUnsealed is returned by Unseal when the manager is already unsealed.
	ErrAlreadyUnsealed = usperrors.New(usperrors.CodeInvalidState, "seal: already unsealed", nil)

	// ErrInvalidParameters is returned when shares/threshold violate spec §3's
	// 1 <= threshold <= shares <= 255 invariant.
	ErrInvalidParameters = usperrors.New(usperrors.CodeValidationError, "seal: invalid shares/threshold parameters", nil)

	// ErrInvalidShare is returned when a submitted unseal share is malformed
	// or does not belong to the current SealConfig generation.
	ErrInvalidShare = usperrors.New(usperrors.CodeInvalidShares, "seal: invalid unseal share", nil)

	// ErrVerificationFailed is returned when the reconstructed master key
	// fails to decrypt the stored verification blob - the supplied shares
	// were valid shares of a different secret, or belong to a prior
	// generation invalidated by Rekey.
	ErrVerificationFailed = usperrors.New(usperrors.CodeInvalidShares, "seal: master key verification failed", nil)

	// ErrRateLimited is returned when too many invalid unseal attempts have
	// been made within the configured window.
	ErrRateLimited = usperrors.New(usperrors.CodeRateLimited, "seal: too many invalid unseal attempts", nil)

	// ErrSealed is returned by MasterKey and every operation built on it
	// when the vault is sealed - the documented failure of spec §4.1's
	// "invocation while Sealed fails with VaultSealed" rule.
	ErrSealed = usperrors.New(usperrors.CodeVaultSealed, "seal: vault is sealed", nil)
)
