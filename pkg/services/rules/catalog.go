package rules

import "github.com/de-tools/cloud-sentinel/pkg/models/domain"

// Rule describes one check of the catalog. The finding id of a rule is
// {provider}-{rule id}-{resource id}.
type Rule struct {
	ID          string
	Kind        domain.ResourceKind
	Severity    domain.Severity
	Title       string
	Remediation string
}

const (
	RuleBucketPublic         = "s3-public"
	RuleBucketNoPublicBlock  = "s3-no-public-block"
	RuleBucketNoEncryption   = "s3-no-encryption"
	RuleIngressOpenSSH       = "sg-open-ssh"
	RuleIdentityAdmin        = "iam-admin"
	RuleIdentityMultipleKeys = "iam-multiple-keys"
	RuleIdentityStaleKey     = "iam-old-key"
)

const (
	AdministratorPolicyName       = "AdministratorAccess"
	UnrestrictedCIDR              = "0.0.0.0/0"
	SSHPort                 int32 = 22
)

// Attribute keys recorded on findings for narrow remediation.
const (
	AttrFromPort    = "from_port"
	AttrToPort      = "to_port"
	AttrProtocol    = "protocol"
	AttrCIDR        = "cidr"
	AttrPolicyARN   = "policy_arn"
	AttrPolicyName  = "policy_name"
	AttrUserName    = "user_name"
	AttrAccessKeyID = "access_key_id"
	AttrKeyAgeDays  = "key_age_days"
	AttrActiveKeys  = "active_keys"
)

var catalog = []Rule{
	{
		ID:          RuleBucketPublic,
		Kind:        domain.KindBucket,
		Severity:    domain.SeverityHigh,
		Title:       "S3 Bucket Public Access Not Blocked",
		Remediation: "Enable all public access block settings for the S3 bucket",
	},
	{
		ID:          RuleBucketNoPublicBlock,
		Kind:        domain.KindBucket,
		Severity:    domain.SeverityHigh,
		Title:       "S3 Bucket Public Access Block Not Configured",
		Remediation: "Configure public access block for the S3 bucket",
	},
	{
		ID:          RuleBucketNoEncryption,
		Kind:        domain.KindBucket,
		Severity:    domain.SeverityMedium,
		Title:       "S3 Bucket Encryption Not Enabled",
		Remediation: "Enable default encryption for the S3 bucket",
	},
	{
		ID:          RuleIngressOpenSSH,
		Kind:        domain.KindIngressRule,
		Severity:    domain.SeverityHigh,
		Title:       "Security Group Open to Internet on SSH Port",
		Remediation: "Restrict SSH access to specific IP ranges",
	},
	{
		ID:          RuleIdentityAdmin,
		Kind:        domain.KindIdentity,
		Severity:    domain.SeverityCritical,
		Title:       "IAM User with Admin Privileges",
		Remediation: "Remove AdministratorAccess policy and apply principle of least privilege",
	},
	{
		ID:          RuleIdentityMultipleKeys,
		Kind:        domain.KindIdentity,
		Severity:    domain.SeverityMedium,
		Title:       "IAM User with Multiple Access Keys",
		Remediation: "Remove unnecessary access keys and rotate regularly",
	},
	{
		ID:          RuleIdentityStaleKey,
		Kind:        domain.KindIdentity,
		Severity:    domain.SeverityMedium,
		Title:       "IAM Access Key Not Rotated",
		Remediation: "Rotate access keys regularly (at least every 90 days)",
	},
}

// Catalog returns a copy of every rule in evaluation order.
func Catalog() []Rule {
	return append([]Rule(nil), catalog...)
}

// Lookup returns the rule with the given id.
func Lookup(id string) (Rule, bool) {
	for _, r := range catalog {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
