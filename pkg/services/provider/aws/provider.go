package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/provider"
)

const (
	errCodeNoPublicAccessBlock = "NoSuchPublicAccessBlockConfiguration"
	errCodeNoEncryption        = "ServerSideEncryptionConfigurationNotFoundError"
)

type liveProvider struct {
	clients Clients
}

func NewProvider(clients Clients) provider.ResourceProvider {
	return &liveProvider{clients: clients}
}

// NewFactory returns a provider factory that connects with settings.
func NewFactory(settings Settings) provider.Factory {
	return func(ctx context.Context) (provider.ResourceProvider, error) {
		clients, err := Connect(ctx, settings)
		if err != nil {
			return nil, err
		}
		return NewProvider(clients), nil
	}
}

func (p *liveProvider) ListBuckets(ctx context.Context) ([]domain.BucketDescriptor, error) {
	logger := zerolog.Ctx(ctx)

	resp, err := p.clients.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, domain.NewTransportError("s3", "list buckets", err)
	}

	buckets := make([]domain.BucketDescriptor, 0, len(resp.Buckets))
	for _, bucket := range resp.Buckets {
		name := awssdk.ToString(bucket.Name)
		desc := domain.BucketDescriptor{
			Name:   name,
			Region: p.bucketRegion(ctx, name),
		}

		pab, err := p.clients.S3.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: bucket.Name})
		switch {
		case err == nil && pab.PublicAccessBlockConfiguration != nil:
			cfg := pab.PublicAccessBlockConfiguration
			desc.PublicAccessBlock = &domain.PublicAccessBlock{
				BlockPublicAcls:       cfg.BlockPublicAcls,
				IgnorePublicAcls:      cfg.IgnorePublicAcls,
				BlockPublicPolicy:     cfg.BlockPublicPolicy,
				RestrictPublicBuckets: cfg.RestrictPublicBuckets,
			}
		case err == nil || hasErrorCode(err, errCodeNoPublicAccessBlock):
			desc.PublicAccessBlockMissing = true
		default:
			logger.Warn().Err(err).Str("bucket", name).Msg("failed to read public access block")
		}

		enc, err := p.clients.S3.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: bucket.Name})
		switch {
		case err == nil:
			encrypted := enc.ServerSideEncryptionConfiguration != nil &&
				len(enc.ServerSideEncryptionConfiguration.Rules) > 0
			desc.DefaultEncryption = &encrypted
		case hasErrorCode(err, errCodeNoEncryption):
			desc.DefaultEncryption = awssdk.Bool(false)
		default:
			logger.Warn().Err(err).Str("bucket", name).Msg("failed to read bucket encryption")
		}

		buckets = append(buckets, desc)
	}
	return buckets, nil
}

func (p *liveProvider) bucketRegion(ctx context.Context, bucket string) string {
	loc, err := p.clients.S3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: awssdk.String(bucket)})
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("bucket", bucket).Msg("failed to get bucket location")
		return p.clients.Region
	}
	region := string(loc.LocationConstraint)
	if region == "" {
		region = DefaultRegion
	}
	return region
}

func (p *liveProvider) ListIngressRules(ctx context.Context) ([]domain.NetworkRuleDescriptor, error) {
	var groups []domain.NetworkRuleDescriptor

	paginator := ec2.NewDescribeSecurityGroupsPaginator(p.clients.EC2, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.NewTransportError("ec2", "describe security groups", err)
		}
		for _, sg := range page.SecurityGroups {
			desc := domain.NetworkRuleDescriptor{
				GroupID:   awssdk.ToString(sg.GroupId),
				GroupName: awssdk.ToString(sg.GroupName),
				Region:    p.clients.Region,
			}
			for _, perm := range sg.IpPermissions {
				ingress := domain.IngressPermission{
					Protocol: awssdk.ToString(perm.IpProtocol),
					FromPort: perm.FromPort,
					ToPort:   perm.ToPort,
				}
				for _, r := range perm.IpRanges {
					ingress.CIDRs = append(ingress.CIDRs, awssdk.ToString(r.CidrIp))
				}
				desc.Permissions = append(desc.Permissions, ingress)
			}
			groups = append(groups, desc)
		}
	}
	return groups, nil
}

func (p *liveProvider) ListIdentities(ctx context.Context) ([]domain.IdentityDescriptor, error) {
	logger := zerolog.Ctx(ctx)
	var users []domain.IdentityDescriptor

	paginator := iam.NewListUsersPaginator(p.clients.IAM, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.NewTransportError("iam", "list users", err)
		}
		for _, user := range page.Users {
			desc := domain.IdentityDescriptor{
				UserID:   awssdk.ToString(user.UserId),
				UserName: awssdk.ToString(user.UserName),
			}

			policies, err := p.attachedPolicies(ctx, user.UserName)
			if err != nil {
				logger.Warn().Err(err).Str("user", desc.UserName).Msg("failed to list attached policies")
			}
			desc.AttachedPolicies = policies

			keys, err := p.accessKeys(ctx, user.UserName)
			if err != nil {
				logger.Warn().Err(err).Str("user", desc.UserName).Msg("failed to list access keys")
			}
			desc.AccessKeys = keys

			users = append(users, desc)
		}
	}
	return users, nil
}

func (p *liveProvider) attachedPolicies(ctx context.Context, userName *string) ([]domain.AttachedPolicy, error) {
	var policies []domain.AttachedPolicy
	paginator := iam.NewListAttachedUserPoliciesPaginator(p.clients.IAM, &iam.ListAttachedUserPoliciesInput{UserName: userName})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return policies, fmt.Errorf("list attached user policies: %w", err)
		}
		for _, policy := range page.AttachedPolicies {
			policies = append(policies, domain.AttachedPolicy{
				Name: awssdk.ToString(policy.PolicyName),
				ARN:  awssdk.ToString(policy.PolicyArn),
			})
		}
	}
	return policies, nil
}

func (p *liveProvider) accessKeys(ctx context.Context, userName *string) ([]domain.AccessKey, error) {
	var keys []domain.AccessKey
	paginator := iam.NewListAccessKeysPaginator(p.clients.IAM, &iam.ListAccessKeysInput{UserName: userName})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return keys, fmt.Errorf("list access keys: %w", err)
		}
		for _, key := range page.AccessKeyMetadata {
			keys = append(keys, domain.AccessKey{
				ID:        awssdk.ToString(key.AccessKeyId),
				Status:    string(key.Status),
				CreatedAt: awssdk.ToTime(key.CreateDate).UTC(),
			})
		}
	}
	return keys, nil
}

func hasErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
