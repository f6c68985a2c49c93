// Package sanitize strips personal data from a cassette collection in two
// passes: a read-only discovery scan over every file, then a rewrite that
// maps each real identifier to a fixed substitute.
package sanitize

import (
	"strconv"

	"vcrkit/config"
)

type category int

const (
	categoryNone category = iota
	categoryOrg
	categoryUser
	categoryEmail
	categoryName
)

// Rules names the sensitive fields and the values that replace them.
type Rules struct {
	TestOrgID    int64
	TestUserID   int64
	TestEmail    string
	NameFallback string

	// SanitizeRequestBody extends body rewriting to request bodies.
	SanitizeRequestBody bool

	orgFields   []string
	userFields  []string
	emailFields []string
	names       map[string]string
	fields      map[string]category
}

func NewRules(cfg config.SanitizeConfig) *Rules {
	r := &Rules{
		TestOrgID:           cfg.TestOrgID,
		TestUserID:          cfg.TestUserID,
		TestEmail:           cfg.TestEmail,
		NameFallback:        cfg.NameFallback,
		SanitizeRequestBody: cfg.SanitizeRequest,
		orgFields:           append([]string(nil), cfg.OrgIDFields...),
		userFields:          append([]string(nil), cfg.UserIDFields...),
		emailFields:         append([]string(nil), cfg.EmailFields...),
		names:               make(map[string]string, len(cfg.NameFields)),
		fields:              make(map[string]category),
	}

	for name, placeholder := range cfg.NameFields {
		r.names[name] = placeholder
		r.fields[name] = categoryName
	}
	for _, f := range r.emailFields {
		r.fields[f] = categoryEmail
	}
	for _, f := range r.userFields {
		r.fields[f] = categoryUser
	}
	for _, f := range r.orgFields {
		r.fields[f] = categoryOrg
	}
	return r
}

// DefaultRules returns the built-in field sets and substitutes.
func DefaultRules() *Rules {
	return NewRules(config.DefaultConfig().Sanitize)
}

func (r *Rules) categoryOf(key string) category {
	return r.fields[key]
}

// NameFor returns the placeholder for a personal-name field.
func (r *Rules) NameFor(field string) string {
	if v := r.names[field]; v != "" {
		return v
	}
	return r.NameFallback
}

func (r *Rules) orgSubstitute() string  { return strconv.FormatInt(r.TestOrgID, 10) }
func (r *Rules) userSubstitute() string { return strconv.FormatInt(r.TestUserID, 10) }
