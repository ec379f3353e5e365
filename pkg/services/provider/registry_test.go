package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

type stubProvider struct {
	buckets []domain.BucketDescriptor
	err     error
}

func (s stubProvider) ListBuckets(context.Context) ([]domain.BucketDescriptor, error) {
	return s.buckets, s.err
}

func (s stubProvider) ListIngressRules(context.Context) ([]domain.NetworkRuleDescriptor, error) {
	return []domain.NetworkRuleDescriptor{{GroupID: "sg-1"}}, s.err
}

func (s stubProvider) ListIdentities(context.Context) ([]domain.IdentityDescriptor, error) {
	return []domain.IdentityDescriptor{{UserID: "u-1"}, {UserID: "u-2"}}, s.err
}

func stubFactory(p ResourceProvider) Factory {
	return func(context.Context) (ResourceProvider, error) { return p, nil }
}

func TestRegistry(t *testing.T) {
	t.Run("register and resolve", func(t *testing.T) {
		r, err := NewRegistry(map[domain.Provider]Factory{
			domain.ProviderAWS: stubFactory(stubProvider{}),
		})
		require.NoError(t, err)

		assert.Equal(t, []domain.Provider{domain.ProviderAWS}, r.ListProviders())

		f, err := r.Factory(domain.ProviderAWS)
		require.NoError(t, err)
		p, err := f(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		r, err := NewRegistry(nil)
		require.NoError(t, err)
		require.NoError(t, r.Register(domain.ProviderAWS, stubFactory(stubProvider{})))
		assert.Error(t, r.Register(domain.ProviderAWS, stubFactory(stubProvider{})))
	})

	t.Run("invalid registration", func(t *testing.T) {
		r, _ := NewRegistry(nil)
		assert.Error(t, r.Register(domain.ProviderAll, stubFactory(stubProvider{})))
		assert.Error(t, r.Register(domain.ProviderAWS, nil))
	})

	t.Run("resolve all", func(t *testing.T) {
		r, _ := NewRegistry(map[domain.Provider]Factory{
			domain.ProviderAWS: stubFactory(stubProvider{}),
		})
		providers, err := Resolve(r, domain.ProviderAll)
		require.NoError(t, err)
		assert.Equal(t, []domain.Provider{domain.ProviderAWS}, providers)

		_, err = Resolve(r, domain.Provider("GCP"))
		assert.Error(t, err)
	})
}

func TestEnumerate(t *testing.T) {
	ctx := context.Background()
	p := stubProvider{buckets: []domain.BucketDescriptor{{Name: "a"}}}

	buckets, err := Enumerate(ctx, p, domain.KindBucket)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "a", buckets[0].Ref().ID)

	groups, err := Enumerate(ctx, p, domain.KindIngressRule)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	users, err := Enumerate(ctx, p, domain.KindIdentity)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "global", users[0].Ref().Region)

	_, err = Enumerate(ctx, p, domain.KindUnknown)
	assert.Error(t, err)

	_, err = Enumerate(ctx, stubProvider{err: errors.New("boom")}, domain.KindIdentity)
	assert.Error(t, err)
}
