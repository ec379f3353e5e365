package provider

import (
	"context"
	"fmt"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

// ResourceProvider enumerates raw resource descriptors of one cloud account.
// Every method may fail independently.
type ResourceProvider interface {
	ListBuckets(ctx context.Context) ([]domain.BucketDescriptor, error)
	ListIngressRules(ctx context.Context) ([]domain.NetworkRuleDescriptor, error)
	ListIdentities(ctx context.Context) ([]domain.IdentityDescriptor, error)
}

// Enumerate lists the descriptors of one resource kind.
func Enumerate(ctx context.Context, p ResourceProvider, kind domain.ResourceKind) ([]domain.Descriptor, error) {
	switch kind {
	case domain.KindBucket:
		buckets, err := p.ListBuckets(ctx)
		if err != nil {
			return nil, err
		}
		res := make([]domain.Descriptor, 0, len(buckets))
		for _, b := range buckets {
			res = append(res, domain.BucketResource(b))
		}
		return res, nil
	case domain.KindIngressRule:
		groups, err := p.ListIngressRules(ctx)
		if err != nil {
			return nil, err
		}
		res := make([]domain.Descriptor, 0, len(groups))
		for _, g := range groups {
			res = append(res, domain.NetworkRuleResource(g))
		}
		return res, nil
	case domain.KindIdentity:
		users, err := p.ListIdentities(ctx)
		if err != nil {
			return nil, err
		}
		res := make([]domain.Descriptor, 0, len(users))
		for _, u := range users {
			res = append(res, domain.IdentityResource(u))
		}
		return res, nil
	default:
		return nil, fmt.Errorf("unsupported resource kind: %q", kind)
	}
}
