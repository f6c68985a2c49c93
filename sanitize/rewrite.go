package sanitize

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vcrkit/logger"
	"vcrkit/node"
)

var orgURLPattern = regexp.MustCompile(`(/org/|\borg_id=)(\d+)`)

// RewriteContext applies the substitutions for one run. It starts from a
// DiscoveryResult and registers any identifier the discovery pass missed.
type RewriteContext struct {
	rules  *Rules
	orgs   map[int64]struct{}
	users  map[int64]struct{}
	logger *zap.Logger

	substitutions int
}

func NewRewriteContext(rules *Rules, discovered *DiscoveryResult, log *zap.Logger) *RewriteContext {
	ctx := &RewriteContext{
		rules:  rules,
		orgs:   make(map[int64]struct{}),
		users:  make(map[int64]struct{}),
		logger: logger.OrNop(log),
	}
	if discovered != nil {
		for id := range discovered.orgIDs {
			ctx.orgs[id] = struct{}{}
		}
		for id := range discovered.userIDs {
			ctx.users[id] = struct{}{}
		}
	}
	return ctx
}

// Substitutions counts values changed so far.
func (c *RewriteContext) Substitutions() int { return c.substitutions }

// OrgIDs lists every organisation id known to the context, discovered or
// registered during the rewrite.
func (c *RewriteContext) OrgIDs() []int64 { return sortedIDs(c.orgs) }

func (c *RewriteContext) UserIDs() []int64 { return sortedIDs(c.users) }

// SanitizeFixture rewrites a parsed cassette in place: the structural walk
// over the whole document, embedded JSON bodies of every interaction, then
// organisation ids in request URLs.
func (c *RewriteContext) SanitizeFixture(tree *node.Node, path string) {
	c.Visit(tree)

	interactions := tree.Get("interactions")
	if !interactions.IsSequence() {
		return
	}
	for i, interaction := range interactions.Items {
		req, resp := interaction.Get("request"), interaction.Get("response")

		if body := resp.Get("body"); body != nil {
			if body.IsMapping() {
				body = body.Get("string")
			}
			c.sanitizeBodyNode(body, path, i, "response")
		}
		if c.rules.SanitizeRequestBody {
			c.sanitizeBodyNode(req.Get("body"), path, i, "request")
		}

		for _, key := range []string{"url", "uri"} {
			if u := req.Get(key); u.IsString() {
				rewritten := c.RewriteURL(u.Text)
				if rewritten != u.Text {
					u.Text = rewritten
					c.substitutions++
				}
			}
		}
	}
}

func (c *RewriteContext) sanitizeBodyNode(body *node.Node, path string, index int, side string) {
	if !body.IsString() || body.Text == "" {
		return
	}
	sanitized, ok := c.SanitizeBody(body.Text)
	if !ok {
		c.logger.Debug("body is not JSON, left unchanged",
			zap.String("path", path),
			zap.Int("interaction", index),
			zap.String("side", side),
		)
		return
	}
	body.Text = sanitized
}

// SanitizeBody parses a serialized JSON body, sanitizes it and returns the
// compact encoding. ok is false when the body is not JSON, in which case it
// must be left as it was.
func (c *RewriteContext) SanitizeBody(body string) (string, bool) {
	tree, err := node.ParseJSON([]byte(body))
	if err != nil {
		return body, false
	}
	c.Visit(tree)
	out, err := node.EncodeJSON(tree, "")
	if err != nil {
		return body, false
	}
	return string(out), true
}

// Visit walks n and replaces sensitive values under recognised keys.
// Sequences of scalars are left alone; only values paired with a key are
// candidates.
func (c *RewriteContext) Visit(n *node.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case node.KindMapping:
		for _, p := range n.Pairs {
			if p.Value.IsScalar() {
				c.sanitizeValue(p.Key, p.Value)
			} else {
				c.Visit(p.Value)
			}
		}
	case node.KindSequence:
		for _, item := range n.Items {
			c.Visit(item)
		}
	case node.KindScalar:
	}
}

func (c *RewriteContext) sanitizeValue(key string, v *node.Node) {
	switch c.rules.categoryOf(key) {
	case categoryOrg:
		if id, ok := v.Int(); ok && id > 0 {
			c.register(c.orgs, id, c.rules.TestOrgID)
			c.replace(v, c.rules.orgSubstitute())
		}
	case categoryUser:
		if id, ok := v.Int(); ok && id > 0 {
			c.register(c.users, id, c.rules.TestUserID)
			c.replace(v, c.rules.userSubstitute())
		}
	case categoryEmail:
		if v.IsString() && strings.Contains(v.Text, "@") {
			c.replace(v, c.rules.TestEmail)
		}
	case categoryName:
		if v.IsString() && v.Text != "" {
			c.replace(v, c.rules.NameFor(key))
		}
	case categoryNone:
	}
}

func (c *RewriteContext) register(set map[int64]struct{}, id, substitute int64) {
	if id == substitute {
		return
	}
	if _, ok := set[id]; !ok {
		c.logger.Debug("registered identifier missed by discovery")
		set[id] = struct{}{}
	}
}

func (c *RewriteContext) replace(v *node.Node, text string) {
	if v.Text == text {
		return
	}
	v.Text = text
	c.substitutions++
}

// RewriteURL replaces known organisation ids in /org/<id> path segments and
// org_id=<id> query parameters. Digits are matched greedily so an id never
// matches inside a longer one.
func (c *RewriteContext) RewriteURL(url string) string {
	var b strings.Builder
	last := 0
	for _, m := range orgURLPattern.FindAllStringSubmatchIndex(url, -1) {
		idStart, idEnd := m[4], m[5]
		if !endsURLSegment(url, idEnd) {
			continue
		}
		id, err := strconv.ParseInt(url[idStart:idEnd], 10, 64)
		if err != nil {
			continue
		}
		if _, known := c.orgs[id]; !known {
			continue
		}
		b.WriteString(url[last:idStart])
		b.WriteString(c.rules.orgSubstitute())
		last = idEnd
	}
	if last == 0 {
		return url
	}
	b.WriteString(url[last:])
	return b.String()
}

// endsURLSegment reports whether an id ending at i is a whole path segment
// or query value.
func endsURLSegment(url string, i int) bool {
	return i == len(url) || strings.IndexByte("/?#&", url[i]) >= 0
}
