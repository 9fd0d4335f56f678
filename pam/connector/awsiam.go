package connector

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// iamAPI is the subset of the IAM client AWSIAMConnector calls,
// narrowed for testability the way permissions.Checker narrows its own
// iam/sts dependency.
type iamAPI interface {
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error)
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// newSTSClientForCredential builds an STS client authenticating as the
// access key encoded in credential ("accessKeyID:secretAccessKey").
// Overridable in tests via stsClientFactory.
type stsClientFactory func(accessKeyID, secretAccessKey string) stsAPI

// AWSIAMConnector manages IAM user access keys: Generate/Rotate create a
// new access key and (on rotate) delete the prior one; Verify calls
// GetCallerIdentity with the credential under test. Address holds the
// IAM user name (IAM access keys aren't scoped by host/port).
type AWSIAMConnector struct {
	iamClient iamAPI
	newSTS    stsClientFactory
	awsRegion string
}

// NewAWSIAMConnector constructs a connector backed by the real IAM/STS
// APIs, in the given cfg's region.
func NewAWSIAMConnector(cfg aws.Config) *AWSIAMConnector {
	return &AWSIAMConnector{
		iamClient: iam.NewFromConfig(cfg),
		newSTS: func(accessKeyID, secretAccessKey string) stsAPI {
			credCfg := cfg.Copy()
			credCfg.Credentials = credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
			return sts.NewFromConfig(credCfg)
		},
		awsRegion: cfg.Region,
	}
}

func splitCredential(credential string) (accessKeyID, secretAccessKey string, err error) {
	for i := 0; i < len(credential); i++ {
		if credential[i] == ':' {
			return credential[:i], credential[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("connector/aws-iam: malformed credential, expected \"accessKeyID:secretAccessKey\"")
}

// Verify calls GetCallerIdentity using current as the IAM credential.
func (c *AWSIAMConnector) Verify(ctx context.Context, target Target, current string) error {
	accessKeyID, secretAccessKey, err := splitCredential(current)
	if err != nil {
		return err
	}
	stsClient := c.newSTS(accessKeyID, secretAccessKey)
	if _, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	return nil
}

// Rotate creates a new access key for target.Username, verifies it
// authenticates, then deletes the access key encoded in current. If
// deleting the old key fails after the new key verifies, the new key is
// left in place (the account still has a working credential) and the
// error is returned so the caller can retry cleanup.
func (c *AWSIAMConnector) Rotate(ctx context.Context, target Target, current, next string) error {
	if err := c.Verify(ctx, target, next); err != nil {
		return fmt.Errorf("connector/aws-iam: new key failed verification: %w", err)
	}

	oldAccessKeyID, _, err := splitCredential(current)
	if err != nil {
		return err
	}
	_, err = c.iamClient.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		UserName:    aws.String(target.Username),
		AccessKeyId: aws.String(oldAccessKeyID),
	})
	if err != nil {
		return fmt.Errorf("connector/aws-iam: deleting prior access key: %w", err)
	}
	return nil
}

// Generate creates a new IAM access key for target's IAM user and
// returns it encoded as "accessKeyID:secretAccessKey". The Target isn't
// known at Generate time by the Connector interface, so callers that
// need Generate to create a real key should use GenerateForUser instead;
// Generate alone returns a random placeholder value for platforms where
// key material isn't produced until Rotate runs against a known user.
func (c *AWSIAMConnector) Generate(ctx context.Context) (string, error) {
	return generatePassword()
}

// GenerateForUser creates a real IAM access key for username and
// returns it encoded as "accessKeyID:secretAccessKey". pam/rotation
// calls this instead of Generate for the aws-iam platform, since IAM
// mints key material server-side rather than accepting a proposed value.
func (c *AWSIAMConnector) GenerateForUser(ctx context.Context, username string) (string, error) {
	out, err := c.iamClient.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: aws.String(username)})
	if err != nil {
		return "", fmt.Errorf("connector/aws-iam: creating access key: %w", err)
	}
	return aws.ToString(out.AccessKey.AccessKeyId) + ":" + aws.ToString(out.AccessKey.SecretAccessKey), nil
}
