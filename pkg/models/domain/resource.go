package domain

import (
	"strings"
	"time"
)

// ResourceKind is the closed set of resource kinds the scanner enumerates.
type ResourceKind string

const (
	KindUnknown     ResourceKind = ""
	KindBucket      ResourceKind = "bucket"
	KindIngressRule ResourceKind = "ingress_rule"
	KindIdentity    ResourceKind = "identity"
)

// ResourceKinds returns every kind in enumeration order.
func ResourceKinds() []ResourceKind {
	return []ResourceKind{KindBucket, KindIngressRule, KindIdentity}
}

// ParseResourceKind resolves a free-text resource type (as stored on older
// records, e.g. "S3 Bucket") into a kind. Unmatched types yield KindUnknown.
func ParseResourceKind(resourceType string) ResourceKind {
	t := strings.ToLower(strings.TrimSpace(resourceType))
	switch ResourceKind(t) {
	case KindBucket, KindIngressRule, KindIdentity:
		return ResourceKind(t)
	}

	switch {
	case t == "":
		return KindUnknown
	case strings.Contains(t, "s3") || strings.Contains(t, "bucket"):
		return KindBucket
	case strings.Contains(t, "security group") || strings.Contains(t, "sg") || strings.Contains(t, "ingress"):
		return KindIngressRule
	case strings.Contains(t, "iam") || strings.Contains(t, "user") || strings.Contains(t, "identity"):
		return KindIdentity
	default:
		return KindUnknown
	}
}

// DisplayType is the human readable resource type used on findings.
func (k ResourceKind) DisplayType() string {
	switch k {
	case KindBucket:
		return "S3 Bucket"
	case KindIngressRule:
		return "Security Group"
	case KindIdentity:
		return "IAM User"
	default:
		return "Unknown"
	}
}

type PublicAccessBlock struct {
	BlockPublicAcls       *bool
	IgnorePublicAcls      *bool
	BlockPublicPolicy     *bool
	RestrictPublicBuckets *bool
}

// FullyEnabled reports whether all four flags are set; unset flags count as disabled.
func (p PublicAccessBlock) FullyEnabled() bool {
	for _, flag := range []*bool{p.BlockPublicAcls, p.IgnorePublicAcls, p.BlockPublicPolicy, p.RestrictPublicBuckets} {
		if flag == nil || !*flag {
			return false
		}
	}
	return true
}

type BucketDescriptor struct {
	Name   string
	Region string
	// PublicAccessBlock is nil when the configuration could not be read.
	PublicAccessBlock *PublicAccessBlock
	// PublicAccessBlockMissing is set when the bucket has no configuration at all.
	PublicAccessBlockMissing bool
	// DefaultEncryption is nil when the encryption state is unknown.
	DefaultEncryption *bool
}

type IngressPermission struct {
	Protocol string
	FromPort *int32 // nil means all ports
	ToPort   *int32
	CIDRs    []string
}

// Covers reports whether the permission's port range includes port.
func (p IngressPermission) Covers(port int32) bool {
	if p.FromPort != nil && *p.FromPort > port {
		return false
	}
	if p.ToPort != nil && *p.ToPort < port && *p.ToPort != -1 {
		return false
	}
	return true
}

type NetworkRuleDescriptor struct {
	GroupID     string
	GroupName   string
	Region      string
	Permissions []IngressPermission
}

type AttachedPolicy struct {
	Name string
	ARN  string
}

type AccessKey struct {
	ID        string
	Status    string // Active, Inactive
	CreatedAt time.Time
}

func (k AccessKey) Active() bool {
	return k.Status == "" || strings.EqualFold(k.Status, "Active")
}

type IdentityDescriptor struct {
	UserID           string
	UserName         string
	AttachedPolicies []AttachedPolicy
	AccessKeys       []AccessKey
}

// Descriptor is a tagged variant over the per-kind descriptors; only the field
// matching Kind is set.
type Descriptor struct {
	Kind        ResourceKind
	Bucket      *BucketDescriptor
	NetworkRule *NetworkRuleDescriptor
	Identity    *IdentityDescriptor
}

func (d Descriptor) Ref() ResourceRef {
	ref := ResourceRef{Kind: d.Kind, Type: d.Kind.DisplayType()}
	switch d.Kind {
	case KindBucket:
		if d.Bucket != nil {
			ref.ID, ref.Name, ref.Region = d.Bucket.Name, d.Bucket.Name, d.Bucket.Region
		}
	case KindIngressRule:
		if d.NetworkRule != nil {
			ref.ID, ref.Name, ref.Region = d.NetworkRule.GroupID, d.NetworkRule.GroupName, d.NetworkRule.Region
		}
	case KindIdentity:
		if d.Identity != nil {
			ref.ID, ref.Name, ref.Region = d.Identity.UserID, d.Identity.UserName, "global"
		}
	}
	return ref
}

func BucketResource(b BucketDescriptor) Descriptor {
	return Descriptor{Kind: KindBucket, Bucket: &b}
}

func NetworkRuleResource(n NetworkRuleDescriptor) Descriptor {
	return Descriptor{Kind: KindIngressRule, NetworkRule: &n}
}

func IdentityResource(i IdentityDescriptor) Descriptor {
	return Descriptor{Kind: KindIdentity, Identity: &i}
}
