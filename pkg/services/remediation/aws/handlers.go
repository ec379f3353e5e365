package aws

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	awsprovider "github.com/de-tools/cloud-sentinel/pkg/services/provider/aws"
	"github.com/de-tools/cloud-sentinel/pkg/services/remediation"
	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
)

const administratorPolicyARN = "arn:aws:iam::aws:policy/" + rules.AdministratorPolicyName

// Handlers returns the AWS remediation table. Actions only touch clients when
// applied, so zero clients are fine for a simulated dispatcher.
func Handlers(clients awsprovider.Clients) map[domain.ResourceKind]remediation.Handler {
	return map[domain.ResourceKind]remediation.Handler{
		domain.KindBucket:      &bucketHandler{clients: clients},
		domain.KindIngressRule: &ingressHandler{clients: clients},
		domain.KindIdentity:    &identityHandler{clients: clients},
	}
}

type bucketHandler struct {
	clients awsprovider.Clients
}

func (h *bucketHandler) Plan(f domain.Finding) (remediation.Action, error) {
	bucket := resourceName(f)
	if bucket == "" {
		return remediation.Action{}, fmt.Errorf("finding %s has no bucket name", f.ID)
	}

	if f.Rule == rules.RuleBucketNoEncryption {
		return remediation.Action{
			Description: fmt.Sprintf("enable default encryption (AES256) on bucket %s", bucket),
			Apply: func(ctx context.Context) error {
				_, err := h.clients.S3.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
					Bucket: awssdk.String(bucket),
					ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
						Rules: []s3types.ServerSideEncryptionRule{{
							ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
								SSEAlgorithm: s3types.ServerSideEncryptionAes256,
							},
						}},
					},
				})
				return domain.NewTransportError("s3", "put bucket encryption", err)
			},
		}, nil
	}

	return remediation.Action{
		Description: fmt.Sprintf("enable all public access block settings on bucket %s", bucket),
		Apply: func(ctx context.Context) error {
			_, err := h.clients.S3.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
				Bucket: awssdk.String(bucket),
				PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
					BlockPublicAcls:       awssdk.Bool(true),
					IgnorePublicAcls:      awssdk.Bool(true),
					BlockPublicPolicy:     awssdk.Bool(true),
					RestrictPublicBuckets: awssdk.Bool(true),
				},
			})
			return domain.NewTransportError("s3", "put public access block", err)
		},
	}, nil
}

type ingressHandler struct {
	clients awsprovider.Clients
}

func (h *ingressHandler) Plan(f domain.Finding) (remediation.Action, error) {
	groupID := f.Resource.ID
	if groupID == "" {
		return remediation.Action{}, fmt.Errorf("finding %s has no security group id", f.ID)
	}

	encoded, err := offendingPermissions(f)
	if err != nil {
		return remediation.Action{}, err
	}

	permissions := make([]ec2types.IpPermission, 0, len(encoded))
	for _, e := range encoded {
		perm, err := rules.DecodePermission(e)
		if err != nil {
			return remediation.Action{}, fmt.Errorf("finding %s: %w", f.ID, err)
		}
		ranges := make([]ec2types.IpRange, 0, len(perm.CIDRs))
		for _, cidr := range perm.CIDRs {
			ranges = append(ranges, ec2types.IpRange{CidrIp: awssdk.String(cidr)})
		}
		permissions = append(permissions, ec2types.IpPermission{
			IpProtocol: awssdk.String(perm.Protocol),
			FromPort:   perm.FromPort,
			ToPort:     perm.ToPort,
			IpRanges:   ranges,
		})
	}

	return remediation.Action{
		Description: fmt.Sprintf("revoke ingress %s from security group %s", strings.Join(encoded, ", "), groupID),
		Apply: func(ctx context.Context) error {
			_, err := h.clients.EC2.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
				GroupId:       awssdk.String(groupID),
				IpPermissions: permissions,
			})
			return domain.NewTransportError("ec2", "revoke security group ingress", err)
		},
	}, nil
}

// offendingPermissions returns the encoded triples recorded on the finding.
// Findings without evidence revoke the unrestricted SSH rule.
func offendingPermissions(f domain.Finding) ([]string, error) {
	if list := f.Attributes[rules.AttrOffending]; list != "" {
		return strings.Split(list, ";"), nil
	}
	if f.Attributes[rules.AttrCIDR] != "" {
		return []string{rules.EncodePermission(f.Attributes)}, nil
	}
	if f.Rule != "" && f.Rule != rules.RuleIngressOpenSSH {
		return nil, fmt.Errorf("%w: rule %s", remediation.ErrUnsupported, f.Rule)
	}
	return []string{rules.EncodePermission(map[string]string{
		rules.AttrProtocol: "tcp",
		rules.AttrFromPort: fmt.Sprint(rules.SSHPort),
		rules.AttrToPort:   fmt.Sprint(rules.SSHPort),
		rules.AttrCIDR:     rules.UnrestrictedCIDR,
	})}, nil
}

type identityHandler struct {
	clients awsprovider.Clients
}

func (h *identityHandler) Plan(f domain.Finding) (remediation.Action, error) {
	user := f.Attributes[rules.AttrUserName]
	if user == "" {
		user = f.Resource.Name
	}
	if user == "" {
		return remediation.Action{}, fmt.Errorf("finding %s has no user name", f.ID)
	}

	rule := f.Rule
	if rule == "" && strings.Contains(strings.ToLower(f.Title), "admin") {
		rule = rules.RuleIdentityAdmin
	}

	switch rule {
	case rules.RuleIdentityAdmin:
		arn := f.Attributes[rules.AttrPolicyARN]
		if arn == "" {
			arn = administratorPolicyARN
		}
		return remediation.Action{
			Description: fmt.Sprintf("detach policy %s from user %s", arn, user),
			Apply: func(ctx context.Context) error {
				_, err := h.clients.IAM.DetachUserPolicy(ctx, &iam.DetachUserPolicyInput{
					UserName:  awssdk.String(user),
					PolicyArn: awssdk.String(arn),
				})
				return domain.NewTransportError("iam", "detach user policy", err)
			},
		}, nil
	case rules.RuleIdentityStaleKey:
		keyID := f.Attributes[rules.AttrAccessKeyID]
		if keyID == "" {
			return remediation.Action{}, fmt.Errorf("finding %s has no access key id", f.ID)
		}
		return remediation.Action{
			Description: fmt.Sprintf("deactivate access key %s of user %s", keyID, user),
			Apply: func(ctx context.Context) error {
				_, err := h.clients.IAM.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
					AccessKeyId: awssdk.String(keyID),
					UserName:    awssdk.String(user),
					Status:      iamtypes.StatusTypeInactive,
				})
				return domain.NewTransportError("iam", "update access key", err)
			},
		}, nil
	case rules.RuleIdentityMultipleKeys:
		return remediation.Action{
			Description: fmt.Sprintf("rotate and deactivate the extra access keys of user %s", user),
		}, nil
	default:
		return remediation.Action{}, fmt.Errorf("%w: rule %q", remediation.ErrUnsupported, f.Rule)
	}
}

func resourceName(f domain.Finding) string {
	if f.Resource.ID != "" {
		return f.Resource.ID
	}
	return f.Resource.Name
}
