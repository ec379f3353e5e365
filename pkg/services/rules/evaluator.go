package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

const AttrOffending = "offending_permissions"

// Settings contains the tunable thresholds of the rule catalog
type Settings struct {
	Provider domain.Provider
	// StaleKeyDays flags access keys older than this many whole days (default: 90)
	StaleKeyDays int
}

func DefaultSettings() Settings {
	return Settings{
		Provider:     domain.ProviderAWS,
		StaleKeyDays: 90,
	}
}

// Evaluator maps one resource descriptor to zero or more findings. It performs
// no I/O and never fails: missing optional descriptor fields mean "no match".
type Evaluator interface {
	Evaluate(d domain.Descriptor) []domain.Finding
	Supports(kind domain.ResourceKind) bool
}

type kindEvaluator func(e *evaluator, d domain.Descriptor) []domain.Finding

type evaluator struct {
	settings Settings
	clock    domain.Clock
	table    map[domain.ResourceKind]kindEvaluator
}

func NewEvaluator(settings Settings, clock domain.Clock) Evaluator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if settings.Provider == "" {
		settings.Provider = domain.ProviderAWS
	}
	if settings.StaleKeyDays <= 0 {
		settings.StaleKeyDays = DefaultSettings().StaleKeyDays
	}

	return &evaluator{
		settings: settings,
		clock:    clock,
		table: map[domain.ResourceKind]kindEvaluator{
			domain.KindBucket:      evaluateBucket,
			domain.KindIngressRule: evaluateNetworkRule,
			domain.KindIdentity:    evaluateIdentity,
		},
	}
}

func (e *evaluator) Supports(kind domain.ResourceKind) bool {
	_, ok := e.table[kind]
	return ok
}

func (e *evaluator) Evaluate(d domain.Descriptor) []domain.Finding {
	eval, ok := e.table[d.Kind]
	if !ok {
		return nil
	}
	return eval(e, d)
}

func (e *evaluator) newFinding(ruleID, keyID, description string, ref domain.ResourceRef, attrs map[string]string) domain.Finding {
	rule, _ := Lookup(ruleID)
	now := domain.NormalizeTime(e.clock.Now())
	return domain.Finding{
		ID:          domain.FindingID(e.settings.Provider, rule.ID, keyID),
		Provider:    e.settings.Provider,
		Rule:        rule.ID,
		Severity:    rule.Severity,
		Status:      domain.StatusOpen,
		Title:       rule.Title,
		Description: description,
		Remediation: rule.Remediation,
		Resource:    ref,
		Attributes:  attrs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func evaluateBucket(e *evaluator, d domain.Descriptor) []domain.Finding {
	b := d.Bucket
	if b == nil || b.Name == "" {
		return nil
	}
	ref := d.Ref()

	var findings []domain.Finding
	switch {
	case b.PublicAccessBlockMissing:
		findings = append(findings, e.newFinding(RuleBucketNoPublicBlock, b.Name,
			fmt.Sprintf("S3 bucket %s does not have public access block configuration", b.Name),
			ref, nil))
	case b.PublicAccessBlock != nil && !b.PublicAccessBlock.FullyEnabled():
		findings = append(findings, e.newFinding(RuleBucketPublic, b.Name,
			fmt.Sprintf("S3 bucket %s does not have all public access block settings enabled", b.Name),
			ref, disabledFlags(*b.PublicAccessBlock)))
	}

	if b.DefaultEncryption != nil && !*b.DefaultEncryption {
		findings = append(findings, e.newFinding(RuleBucketNoEncryption, b.Name,
			fmt.Sprintf("S3 bucket %s does not have default encryption enabled", b.Name),
			ref, nil))
	}
	return findings
}

func disabledFlags(p domain.PublicAccessBlock) map[string]string {
	flags := map[string]*bool{
		"block_public_acls":       p.BlockPublicAcls,
		"ignore_public_acls":      p.IgnorePublicAcls,
		"block_public_policy":     p.BlockPublicPolicy,
		"restrict_public_buckets": p.RestrictPublicBuckets,
	}
	attrs := make(map[string]string, len(flags))
	for name, flag := range flags {
		attrs[name] = strconv.FormatBool(flag != nil && *flag)
	}
	return attrs
}

func evaluateNetworkRule(e *evaluator, d domain.Descriptor) []domain.Finding {
	sg := d.NetworkRule
	if sg == nil || sg.GroupID == "" {
		return nil
	}

	var offending []string
	var first map[string]string
	for _, perm := range sg.Permissions {
		if !perm.Covers(SSHPort) {
			continue
		}
		// only the first unrestricted range of a permission counts
		for _, cidr := range perm.CIDRs {
			if strings.TrimSpace(cidr) != UnrestrictedCIDR {
				continue
			}
			triple := permissionAttributes(perm, cidr)
			if first == nil {
				first = triple
			}
			offending = append(offending, EncodePermission(triple))
			break
		}
	}
	if first == nil {
		return nil
	}

	first[AttrOffending] = strings.Join(offending, ";")
	return []domain.Finding{
		e.newFinding(RuleIngressOpenSSH, sg.GroupID,
			fmt.Sprintf("Security group %s (%s) allows unrestricted inbound access on port 22 (SSH)", sg.GroupName, sg.GroupID),
			d.Ref(), first),
	}
}

func permissionAttributes(perm domain.IngressPermission, cidr string) map[string]string {
	protocol := perm.Protocol
	if protocol == "" {
		protocol = "-1"
	}
	attrs := map[string]string{
		AttrProtocol: protocol,
		AttrCIDR:     cidr,
	}
	// -1 is how the API spells "all ports"
	if perm.FromPort != nil && *perm.FromPort >= 0 {
		attrs[AttrFromPort] = strconv.Itoa(int(*perm.FromPort))
	}
	if perm.ToPort != nil && *perm.ToPort >= 0 {
		attrs[AttrToPort] = strconv.Itoa(int(*perm.ToPort))
	}
	return attrs
}

// EncodePermission renders a permission triple as protocol:from-to:cidr; absent
// ports are written as "*".
func EncodePermission(attrs map[string]string) string {
	from, to := attrs[AttrFromPort], attrs[AttrToPort]
	if from == "" {
		from = "*"
	}
	if to == "" {
		to = "*"
	}
	return fmt.Sprintf("%s:%s-%s:%s", attrs[AttrProtocol], from, to, attrs[AttrCIDR])
}

// DecodePermission parses the output of EncodePermission.
func DecodePermission(encoded string) (domain.IngressPermission, error) {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 {
		return domain.IngressPermission{}, fmt.Errorf("malformed permission %q", encoded)
	}
	ports := strings.SplitN(parts[1], "-", 2)
	if len(ports) != 2 {
		return domain.IngressPermission{}, fmt.Errorf("malformed port range in %q", encoded)
	}

	perm := domain.IngressPermission{Protocol: parts[0], CIDRs: []string{parts[2]}}
	var err error
	if perm.FromPort, err = parsePort(ports[0]); err != nil {
		return domain.IngressPermission{}, err
	}
	if perm.ToPort, err = parsePort(ports[1]); err != nil {
		return domain.IngressPermission{}, err
	}
	return perm, nil
}

func parsePort(value string) (*int32, error) {
	if value == "*" || value == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", value, err)
	}
	port := int32(n)
	return &port, nil
}

func evaluateIdentity(e *evaluator, d domain.Descriptor) []domain.Finding {
	user := d.Identity
	if user == nil || user.UserID == "" {
		return nil
	}
	ref := d.Ref()

	var findings []domain.Finding
	for _, policy := range user.AttachedPolicies {
		if !isAdministratorPolicy(policy) {
			continue
		}
		findings = append(findings, e.newFinding(RuleIdentityAdmin, user.UserID,
			fmt.Sprintf("IAM user %s has %s policy attached", user.UserName, AdministratorPolicyName),
			ref, map[string]string{
				AttrPolicyARN:  policy.ARN,
				AttrPolicyName: policy.Name,
				AttrUserName:   user.UserName,
			}))
		break
	}

	active := make([]domain.AccessKey, 0, len(user.AccessKeys))
	for _, key := range user.AccessKeys {
		if key.Active() {
			active = append(active, key)
		}
	}

	if len(active) > 1 {
		findings = append(findings, e.newFinding(RuleIdentityMultipleKeys, user.UserID,
			fmt.Sprintf("IAM user %s has multiple active access keys", user.UserName),
			ref, map[string]string{
				AttrUserName:   user.UserName,
				AttrActiveKeys: strconv.Itoa(len(active)),
			}))
	}

	now := e.clock.Now().UTC()
	// age applies to every key, active or not
	for _, key := range user.AccessKeys {
		if key.ID == "" || key.CreatedAt.IsZero() {
			continue
		}
		age := KeyAgeDays(now, key.CreatedAt)
		if age <= e.settings.StaleKeyDays {
			continue
		}
		findings = append(findings, e.newFinding(RuleIdentityStaleKey, key.ID,
			fmt.Sprintf("Access key %s for user %s is %d days old", key.ID, user.UserName, age),
			ref, map[string]string{
				AttrAccessKeyID: key.ID,
				AttrUserName:    user.UserName,
				AttrKeyAgeDays:  strconv.Itoa(age),
			}))
	}
	return findings
}

func isAdministratorPolicy(p domain.AttachedPolicy) bool {
	return p.Name == AdministratorPolicyName || strings.HasSuffix(p.ARN, ":policy/"+AdministratorPolicyName)
}

// KeyAgeDays returns the age in whole 24h days, both instants taken in UTC.
func KeyAgeDays(now, created time.Time) int {
	age := now.UTC().Sub(created.UTC())
	if age < 0 {
		return 0
	}
	return int(age / (24 * time.Hour))
}
