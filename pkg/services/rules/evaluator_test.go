package rules

import (
	"testing"
	"time"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEvaluator() Evaluator {
	return NewEvaluator(DefaultSettings(), domain.ClockFunc(func() time.Time { return fixedNow }))
}

func boolPtr(v bool) *bool   { return &v }
func portPtr(v int32) *int32 { return &v }

func findingIDs(findings []domain.Finding) []string {
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		ids = append(ids, f.ID)
	}
	return ids
}

func TestEvaluate_Bucket(t *testing.T) {
	e := newTestEvaluator()

	t.Run("partially configured public access block", func(t *testing.T) {
		findings := e.Evaluate(domain.BucketResource(domain.BucketDescriptor{
			Name: "b1",
			PublicAccessBlock: &domain.PublicAccessBlock{
				BlockPublicAcls:       boolPtr(false),
				IgnorePublicAcls:      boolPtr(true),
				BlockPublicPolicy:     boolPtr(true),
				RestrictPublicBuckets: boolPtr(true),
			},
		}))
		require.Len(t, findings, 1)
		assert.Equal(t, "aws-s3-public-b1", findings[0].ID)
		assert.Equal(t, domain.SeverityHigh, findings[0].Severity)
		assert.Equal(t, domain.StatusOpen, findings[0].Status)
		assert.Equal(t, domain.KindBucket, findings[0].Resource.Kind)
		assert.Equal(t, "false", findings[0].Attributes["block_public_acls"])
	})

	t.Run("missing public access block uses a distinct id", func(t *testing.T) {
		findings := e.Evaluate(domain.BucketResource(domain.BucketDescriptor{
			Name:                     "b1",
			PublicAccessBlockMissing: true,
		}))
		require.Len(t, findings, 1)
		assert.Equal(t, "aws-s3-no-public-block-b1", findings[0].ID)
		assert.Equal(t, "S3 Bucket Public Access Block Not Configured", findings[0].Title)
	})

	t.Run("fully blocked and encrypted bucket is clean", func(t *testing.T) {
		findings := e.Evaluate(domain.BucketResource(domain.BucketDescriptor{
			Name: "b2",
			PublicAccessBlock: &domain.PublicAccessBlock{
				BlockPublicAcls:       boolPtr(true),
				IgnorePublicAcls:      boolPtr(true),
				BlockPublicPolicy:     boolPtr(true),
				RestrictPublicBuckets: boolPtr(true),
			},
			DefaultEncryption: boolPtr(true),
		}))
		assert.Empty(t, findings)
	})

	t.Run("unencrypted bucket", func(t *testing.T) {
		findings := e.Evaluate(domain.BucketResource(domain.BucketDescriptor{
			Name:              "b3",
			DefaultEncryption: boolPtr(false),
		}))
		require.Len(t, findings, 1)
		assert.Equal(t, "aws-s3-no-encryption-b3", findings[0].ID)
		assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
	})

	t.Run("unknown state is not a match", func(t *testing.T) {
		assert.Empty(t, e.Evaluate(domain.BucketResource(domain.BucketDescriptor{Name: "b4"})))
		assert.Empty(t, e.Evaluate(domain.Descriptor{Kind: domain.KindBucket}))
	})
}

func TestEvaluate_NetworkRule(t *testing.T) {
	e := newTestEvaluator()

	t.Run("open range covering ssh", func(t *testing.T) {
		findings := e.Evaluate(domain.NetworkRuleResource(domain.NetworkRuleDescriptor{
			GroupID:   "sg-1",
			GroupName: "web",
			Permissions: []domain.IngressPermission{
				{Protocol: "tcp", FromPort: portPtr(20), ToPort: portPtr(25), CIDRs: []string{"0.0.0.0/0", "0.0.0.0/0"}},
			},
		}))
		require.Len(t, findings, 1)
		assert.Equal(t, "aws-sg-open-ssh-sg-1", findings[0].ID)
		assert.Equal(t, domain.SeverityHigh, findings[0].Severity)
		assert.Equal(t, "20", findings[0].Attributes[AttrFromPort])
		assert.Equal(t, "25", findings[0].Attributes[AttrToPort])
		assert.Equal(t, "tcp:20-25:0.0.0.0/0", findings[0].Attributes[AttrOffending])
	})

	t.Run("private range is not flagged", func(t *testing.T) {
		findings := e.Evaluate(domain.NetworkRuleResource(domain.NetworkRuleDescriptor{
			GroupID: "sg-1",
			Permissions: []domain.IngressPermission{
				{Protocol: "tcp", FromPort: portPtr(20), ToPort: portPtr(25), CIDRs: []string{"10.0.0.0/8"}},
			},
		}))
		assert.Empty(t, findings)
	})

	t.Run("range not covering ssh", func(t *testing.T) {
		findings := e.Evaluate(domain.NetworkRuleResource(domain.NetworkRuleDescriptor{
			GroupID: "sg-1",
			Permissions: []domain.IngressPermission{
				{Protocol: "tcp", FromPort: portPtr(443), ToPort: portPtr(443), CIDRs: []string{"0.0.0.0/0"}},
			},
		}))
		assert.Empty(t, findings)
	})

	t.Run("multiple offending permissions yield a single finding", func(t *testing.T) {
		findings := e.Evaluate(domain.NetworkRuleResource(domain.NetworkRuleDescriptor{
			GroupID: "sg-2",
			Permissions: []domain.IngressPermission{
				{Protocol: "tcp", FromPort: portPtr(22), ToPort: portPtr(22), CIDRs: []string{"0.0.0.0/0"}},
				{Protocol: "-1", CIDRs: []string{"0.0.0.0/0"}},
			},
		}))
		require.Len(t, findings, 1)
		assert.Equal(t, "tcp:22-22:0.0.0.0/0;-1:*-*:0.0.0.0/0", findings[0].Attributes[AttrOffending])
	})
}

func TestEvaluate_Identity(t *testing.T) {
	e := newTestEvaluator()

	t.Run("three active keys", func(t *testing.T) {
		findings := e.Evaluate(domain.IdentityResource(domain.IdentityDescriptor{
			UserID:   "AID1",
			UserName: "alice",
			AccessKeys: []domain.AccessKey{
				{ID: "AK-OLD", Status: "Active", CreatedAt: fixedNow.Add(-120 * 24 * time.Hour)},
				{ID: "AK-EDGE", Status: "Active", CreatedAt: fixedNow.Add(-90*24*time.Hour - time.Hour)},
				{ID: "AK-NEW", Status: "Active", CreatedAt: fixedNow.Add(-10 * 24 * time.Hour)},
			},
		}))
		assert.Equal(t, []string{"aws-iam-multiple-keys-AID1", "aws-iam-old-key-AK-OLD"}, findingIDs(findings))
		assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
		assert.Equal(t, "120", findings[1].Attributes[AttrKeyAgeDays])
	})

	t.Run("administrator policy", func(t *testing.T) {
		findings := e.Evaluate(domain.IdentityResource(domain.IdentityDescriptor{
			UserID:   "AID2",
			UserName: "bob",
			AttachedPolicies: []domain.AttachedPolicy{
				{Name: "ReadOnlyAccess", ARN: "arn:aws:iam::aws:policy/ReadOnlyAccess"},
				{Name: "AdministratorAccess", ARN: "arn:aws:iam::aws:policy/AdministratorAccess"},
			},
		}))
		require.Len(t, findings, 1)
		assert.Equal(t, "aws-iam-admin-AID2", findings[0].ID)
		assert.Equal(t, domain.SeverityCritical, findings[0].Severity)
		assert.Equal(t, "global", findings[0].Resource.Region)
		assert.Equal(t, "arn:aws:iam::aws:policy/AdministratorAccess", findings[0].Attributes[AttrPolicyARN])
	})

	t.Run("inactive keys still age", func(t *testing.T) {
		findings := e.Evaluate(domain.IdentityResource(domain.IdentityDescriptor{
			UserID: "AID3",
			AccessKeys: []domain.AccessKey{
				{ID: "AK1", Status: "Inactive", CreatedAt: fixedNow.Add(-400 * 24 * time.Hour)},
				{ID: "AK2", Status: "Active", CreatedAt: fixedNow},
			},
		}))
		assert.Equal(t, []string{"aws-iam-old-key-AK1"}, findingIDs(findings))
		assert.Equal(t, "400", findings[0].Attributes[AttrKeyAgeDays])
	})
}

func TestEvaluate_Idempotent(t *testing.T) {
	e := newTestEvaluator()
	d := domain.BucketResource(domain.BucketDescriptor{Name: "b1", PublicAccessBlockMissing: true})

	first := e.Evaluate(d)
	second := e.Evaluate(d)
	assert.Equal(t, findingIDs(first), findingIDs(second))
	assert.Empty(t, e.Evaluate(domain.Descriptor{Kind: domain.KindUnknown}))
}

func TestKeyAgeDays(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	created := time.Date(2025, 3, 3, 7, 0, 0, 0, est)

	assert.Equal(t, 90, KeyAgeDays(created.Add(90*24*time.Hour), created))
	assert.Equal(t, 89, KeyAgeDays(created.Add(90*24*time.Hour-time.Second), created))
	assert.Equal(t, 0, KeyAgeDays(created.Add(-time.Hour), created))
}

func TestPermissionCodec(t *testing.T) {
	perm, err := DecodePermission("tcp:20-25:0.0.0.0/0")
	require.NoError(t, err)
	assert.Equal(t, "tcp", perm.Protocol)
	assert.Equal(t, int32(20), *perm.FromPort)
	assert.Equal(t, int32(25), *perm.ToPort)
	assert.Equal(t, []string{"0.0.0.0/0"}, perm.CIDRs)

	perm, err = DecodePermission("-1:*-*:0.0.0.0/0")
	require.NoError(t, err)
	assert.Nil(t, perm.FromPort)

	_, err = DecodePermission("garbage")
	assert.Error(t, err)
}
