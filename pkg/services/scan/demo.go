package scan

import (
	"time"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
)

// DemoFindings returns the fixed offline fixture set, stamped with now.
func DemoFindings(provider domain.Provider, now time.Time) []domain.Finding {
	if provider == "" || provider == domain.ProviderAll {
		provider = domain.ProviderAWS
	}
	now = domain.NormalizeTime(now)

	fixtures := []domain.Finding{
		{
			ID:          "aws-demo-001",
			Rule:        rules.RuleBucketPublic,
			Severity:    domain.SeverityHigh,
			Title:       "S3 Bucket Public Access",
			Description: "S3 bucket has public read access enabled",
			Remediation: "Disable public access for the S3 bucket by updating the bucket policy",
			Resource: domain.ResourceRef{
				ID:     "example-public-bucket",
				Name:   "example-public-bucket",
				Type:   domain.KindBucket.DisplayType(),
				Kind:   domain.KindBucket,
				Region: "us-west-2",
			},
		},
		{
			ID:          "aws-demo-002",
			Rule:        rules.RuleIngressOpenSSH,
			Severity:    domain.SeverityMedium,
			Title:       "Security Group Open to Internet",
			Description: "Security group allows unrestricted inbound access on port 22",
			Remediation: "Restrict SSH access to specific IP ranges",
			Resource: domain.ResourceRef{
				ID:     "sg-12345",
				Name:   "default-sg",
				Type:   domain.KindIngressRule.DisplayType(),
				Kind:   domain.KindIngressRule,
				Region: "us-west-2",
			},
			Attributes: map[string]string{
				rules.AttrProtocol: "tcp",
				rules.AttrFromPort: "22",
				rules.AttrToPort:   "22",
				rules.AttrCIDR:     rules.UnrestrictedCIDR,
			},
		},
		{
			ID:          "aws-demo-003",
			Rule:        rules.RuleIdentityAdmin,
			Severity:    domain.SeverityCritical,
			Title:       "IAM User with Admin Privileges",
			Description: "IAM user has AdministratorAccess policy attached",
			Remediation: "Remove AdministratorAccess policy and apply principle of least privilege",
			Resource: domain.ResourceRef{
				ID:     "AIDACKCEVSQ6C2EXAMPLE",
				Name:   "test-user",
				Type:   domain.KindIdentity.DisplayType(),
				Kind:   domain.KindIdentity,
				Region: "global",
			},
			Attributes: map[string]string{
				rules.AttrUserName:   "test-user",
				rules.AttrPolicyName: rules.AdministratorPolicyName,
				rules.AttrPolicyARN:  "arn:aws:iam::aws:policy/" + rules.AdministratorPolicyName,
			},
		},
	}

	for i := range fixtures {
		fixtures[i].Provider = provider
		fixtures[i].Status = domain.StatusOpen
		fixtures[i].CreatedAt = now
		fixtures[i].UpdatedAt = now
	}
	return fixtures
}
