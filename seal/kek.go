package seal

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/vaultcore/usp/crypto"
)

// LocalKEKProvider wraps the master key with a 32-byte operator-supplied
// secret (e.g. from an environment variable or a mounted file), using the
// same AES-256-GCM primitive as every other envelope in the system. This
// is the default when no HSM is configured, per spec §1's KMS/HSM Non-goal.
type LocalKEKProvider struct {
	kek []byte
}

// NewLocalKEKProvider builds a provider from a 32-byte key.
func NewLocalKEKProvider(kek []byte) (*LocalKEKProvider, error) {
	if len(kek) != crypto.KeySize {
		return nil, fmt.Errorf("seal: local KEK must be %d bytes, got %d", crypto.KeySize, len(kek))
	}
	return &LocalKEKProvider{kek: kek}, nil
}

// Wrap encrypts plaintext under the local KEK, producing a
// nonce||ciphertext blob.
func (p *LocalKEKProvider) Wrap(_ context.Context, plaintext []byte) ([]byte, error) {
	nonce, ciphertext, err := crypto.Encrypt(p.kek, plaintext, nil)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// Unwrap decrypts a blob produced by Wrap.
func (p *LocalKEKProvider) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	if len(wrapped) < crypto.NonceSize {
		return nil, fmt.Errorf("seal: wrapped blob too short")
	}
	nonce := wrapped[:crypto.NonceSize]
	ciphertext := wrapped[crypto.NonceSize:]
	return crypto.Decrypt(p.kek, nonce, ciphertext, nil)
}

// kmsAPI defines the KMS operations used by KMSKEKProvider. This interface
// enables testing with mock implementations, following the same pattern
// as policy.KMSAPI.
type kmsAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSKEKProvider wraps the master key using an AWS KMS symmetric key,
// so the KEK itself never exists as plaintext bytes in this process.
type KMSKEKProvider struct {
	client kmsAPI
	keyID  string
}

// NewKMSKEKProvider creates a KMSKEKProvider using the provided AWS
// configuration. keyID is a KMS key ID, key ARN, alias name, or alias ARN.
func NewKMSKEKProvider(cfg aws.Config, keyID string) *KMSKEKProvider {
	return &KMSKEKProvider{client: kms.NewFromConfig(cfg), keyID: keyID}
}

func newKMSKEKProviderWithClient(client kmsAPI, keyID string) *KMSKEKProvider {
	return &KMSKEKProvider{client: client, keyID: keyID}
}

// Wrap calls kms:Encrypt on plaintext under the configured key.
func (p *KMSKEKProvider) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	output, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("seal: kms encrypt: %w", err)
	}
	return output.CiphertextBlob, nil
}

// Unwrap calls kms:Decrypt on a blob produced by Wrap.
func (p *KMSKEKProvider) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	output, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(p.keyID),
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("seal: kms decrypt: %w", err)
	}
	return output.Plaintext, nil
}
