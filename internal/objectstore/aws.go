// Package objectstore resolves AWS credentials and uploads files to S3.
package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

// DefaultRoleSessionName is used for assume-role sessions without a configured name.
const DefaultRoleSessionName = "docingest"

// AWSConfig holds the credential and endpoint settings.
type AWSConfig struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	AssumeRoleARN   string
	RoleSessionName string
	Endpoint        string // S3-compatible endpoint override
	UsePathStyle    bool
}

// CredentialSource says where credentials come from.
type CredentialSource string

// Credential sources in precedence order.
const (
	SourceProfile    CredentialSource = "profile"
	SourceStatic     CredentialSource = "static"
	SourceAssumeRole CredentialSource = "assume_role"
	SourceDefault    CredentialSource = "default"
)

// ResolveSource picks the credential source: a named profile wins, then a
// static key pair, then an assume-role ARN, then the default chain.
func ResolveSource(cfg AWSConfig) CredentialSource {
	switch {
	case cfg.Profile != "":
		return SourceProfile
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		return SourceStatic
	case cfg.AssumeRoleARN != "":
		return SourceAssumeRole
	default:
		return SourceDefault
	}
}

// LoadAWSConfig builds an aws.Config from cfg.
func LoadAWSConfig(ctx context.Context, cfg AWSConfig, logger *zap.Logger) (aws.Config, error) {
	source := ResolveSource(cfg)

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	switch source {
	case SourceProfile:
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	case SourceStatic:
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	case SourceAssumeRole, SourceDefault:
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	if source == SourceAssumeRole {
		name := cfg.RoleSessionName
		if name == "" {
			name = DefaultRoleSessionName
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.AssumeRoleARN,
			func(o *stscreds.AssumeRoleOptions) { o.RoleSessionName = name })
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	if logger != nil {
		logger.Info("AWS credentials initialized",
			zap.String("source", string(source)),
			zap.String("region", awsCfg.Region),
		)
	}
	return awsCfg, nil
}

// NewS3Client creates an S3 client, honoring the endpoint override.
func NewS3Client(awsCfg aws.Config, cfg AWSConfig) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
}
