package sanitize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DiscoveryResult holds the real identifiers found by the discovery pass.
// It is not modified after Discover returns.
type DiscoveryResult struct {
	orgIDs  map[int64]struct{}
	userIDs map[int64]struct{}
}

func (d *DiscoveryResult) HasOrg(id int64) bool {
	_, ok := d.orgIDs[id]
	return ok
}

func (d *DiscoveryResult) HasUser(id int64) bool {
	_, ok := d.userIDs[id]
	return ok
}

// OrgIDs lists discovered organisation ids in ascending order.
func (d *DiscoveryResult) OrgIDs() []int64 { return sortedIDs(d.orgIDs) }

// UserIDs lists discovered user ids in ascending order.
func (d *DiscoveryResult) UserIDs() []int64 { return sortedIDs(d.userIDs) }

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Discoverer scans raw fixture text for identifier fields. The key may be
// quoted, escaped-quoted inside a serialized body, or a bare YAML key.
type Discoverer struct {
	rules  *Rules
	orgRe  *regexp.Regexp
	userRe *regexp.Regexp
}

func NewDiscoverer(rules *Rules) *Discoverer {
	return &Discoverer{
		rules:  rules,
		orgRe:  fieldPattern(rules.orgFields),
		userRe: fieldPattern(rules.userFields),
	}
}

func fieldPattern(fields []string) *regexp.Regexp {
	if len(fields) == 0 {
		return nil
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	// Longest first so org_id is preferred over org.
	sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })

	return regexp.MustCompile(`(?m)(?:^|[\s{,\['"]|\\")(?:` + strings.Join(quoted, "|") +
		`)(?:\\?["'])?\s*:\s*(\d+)(?:[^\d.eE]|$)`)
}

// Discover runs the discovery pass over the raw contents of every fixture.
// Zero, values outside int64 and the substitutes themselves are never
// registered.
func (d *Discoverer) Discover(contents [][]byte) *DiscoveryResult {
	result := &DiscoveryResult{
		orgIDs:  make(map[int64]struct{}),
		userIDs: make(map[int64]struct{}),
	}
	for _, data := range contents {
		collect(d.orgRe, data, d.rules.TestOrgID, result.orgIDs)
		collect(d.userRe, data, d.rules.TestUserID, result.userIDs)
	}
	return result
}

func collect(re *regexp.Regexp, data []byte, substitute int64, into map[int64]struct{}) {
	if re == nil {
		return
	}
	for _, m := range re.FindAllSubmatch(data, -1) {
		id, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil || id <= 0 || id == substitute {
			continue
		}
		into[id] = struct{}{}
	}
}
