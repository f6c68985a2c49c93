// Package playback answers HTTP requests from a recorded cassette, either as
// an http.RoundTripper for clients under test or as an http.Handler.
package playback

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vcrkit/config"
	"vcrkit/convert"
	"vcrkit/fixture"
	"vcrkit/logger"
)

const (
	MatchExact = "exact"
	MatchFuzzy = "fuzzy"
)

var ErrNoMatch = errors.New("no matching interaction")

type Cassette struct {
	Path         string
	Interactions []fixture.NestedInteraction
}

// LoadCassette reads a cassette in either schema. Flat cassettes are
// converted in memory; the file is not modified.
func LoadCassette(path string) (*Cassette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cassette %s: %w", path, err)
	}

	format := fixture.DetectFormatForPath(path, data)
	tree, err := fixture.ParseTree(data, format)
	if err != nil {
		return nil, &fixture.FixtureParseError{Path: path, Err: err}
	}

	schema, err := fixture.DetectSchema(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var nested *fixture.NestedCassette
	if schema == fixture.SchemaFlat {
		flat, err := fixture.DecodeFlat(data, format)
		if err != nil {
			return nil, &fixture.FixtureParseError{Path: path, Err: err}
		}
		nested, err = convert.ConvertCassette(flat)
		if err != nil {
			var schemaErr *fixture.SchemaError
			if errors.As(err, &schemaErr) {
				schemaErr.Path = path
			}
			return nil, err
		}
	} else {
		nested, err = fixture.DecodeNested(data, format)
		if err != nil {
			return nil, &fixture.FixtureParseError{Path: path, Err: err}
		}
	}

	return &Cassette{Path: path, Interactions: nested.Interactions}, nil
}

// Player selects recorded interactions for incoming requests. Repeated
// requests with the same signature walk through their matches in recorded
// order and wrap around at the end.
type Player struct {
	cassette   *Cassette
	strategy   string
	matchQuery bool
	notFound   config.NotFoundResponseConfig
	logger     *zap.Logger

	sequenceMutex sync.Mutex
	sequenceState map[string]int
}

func NewPlayer(cassette *Cassette, cfg config.PlaybackConfig, log *zap.Logger) *Player {
	strategy := cfg.MatchingStrategy
	if strategy == "" {
		strategy = MatchExact
	}
	return &Player{
		cassette:      cassette,
		strategy:      strategy,
		matchQuery:    cfg.MatchQuery,
		notFound:      cfg.NotFoundResponse,
		logger:        logger.OrNop(log).Named("playback"),
		sequenceState: make(map[string]int),
	}
}

// Match returns the next recorded interaction for req.
func (p *Player) Match(req *http.Request) (*fixture.NestedInteraction, error) {
	var candidates []int
	for i := range p.cassette.Interactions {
		if p.matches(&p.cassette.Interactions[i].Request, req) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for %s %s", ErrNoMatch, req.Method, req.URL.String())
	}

	signature := req.Method + " " + req.URL.Path
	if p.matchQuery {
		signature += "?" + req.URL.RawQuery
	}

	p.sequenceMutex.Lock()
	next := p.sequenceState[signature]
	if next >= len(candidates) {
		next = 0
	}
	p.sequenceState[signature] = next + 1
	p.sequenceMutex.Unlock()

	interaction := &p.cassette.Interactions[candidates[next]]
	p.logger.Debug("matched interaction",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("index", candidates[next]),
		zap.Int("code", interaction.Response.Code),
	)
	return interaction, nil
}

func (p *Player) ResetSequenceState() {
	p.sequenceMutex.Lock()
	defer p.sequenceMutex.Unlock()
	p.sequenceState = make(map[string]int)
}

func (p *Player) matches(recorded *fixture.NestedRequest, req *http.Request) bool {
	if recorded.Method != req.Method {
		return false
	}

	recordedURL, err := url.Parse(recorded.URI)
	if err != nil {
		return false
	}

	var pathMatches bool
	switch p.strategy {
	case MatchFuzzy:
		pathMatches = fuzzyPathMatch(recordedURL.Path, req.URL.Path)
	default:
		pathMatches = recordedURL.Path == req.URL.Path
	}
	if !pathMatches {
		return false
	}

	if p.matchQuery && !queryMatches(recordedURL.Query(), req.URL.Query()) {
		return false
	}
	return true
}

// fuzzyPathMatch compares segment by segment, treating any pair of numeric
// or UUID segments as equal.
func fuzzyPathMatch(recorded, current string) bool {
	recordedParts := strings.Split(strings.TrimPrefix(recorded, "/"), "/")
	currentParts := strings.Split(strings.TrimPrefix(current, "/"), "/")

	if len(recordedParts) != len(currentParts) {
		return false
	}

	for i := range recordedParts {
		if recordedParts[i] != currentParts[i] {
			if !isNumericOrUUID(recordedParts[i]) || !isNumericOrUUID(currentParts[i]) {
				return false
			}
		}
	}
	return true
}

func isNumericOrUUID(s string) bool {
	if s == "" {
		return false
	}
	if len(s) == 36 {
		if _, err := uuid.Parse(s); err == nil {
			return true
		}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// queryMatches requires every recorded parameter to be present with the
// same set of values. Extra parameters on the request are ignored.
func queryMatches(recorded, current url.Values) bool {
	for k, recordedValues := range recorded {
		currentValues, ok := current[k]
		if !ok || len(currentValues) != len(recordedValues) {
			return false
		}

		r := append([]string(nil), recordedValues...)
		c := append([]string(nil), currentValues...)
		sort.Strings(r)
		sort.Strings(c)
		for i := range r {
			if r[i] != c[i] {
				return false
			}
		}
	}
	return true
}
