package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrScreeningUnavailable means the interaction knowledge source could not be
// consulted. Callers must surface this as "screening did not run", never as
// "no interactions found".
var ErrScreeningUnavailable = errors.New("drug interaction screening unavailable")

// Source is an interaction knowledge provider.
type Source interface {
	Check(ctx context.Context, names []string) ([]string, error)
}

// Screener screens a medication-name set for known interactions. Advisory
// only: it never blocks prescription creation.
type Screener struct {
	source Source
}

func NewScreener(source Source) *Screener {
	return &Screener{source: source}
}

// Check trims empty entries and consults the source. Fewer than two names
// means no screening is meaningful, so the source is not invoked at all.
func (s *Screener) Check(ctx context.Context, names []string) ([]string, error) {
	cleaned := nonEmptyNames(names)
	if len(cleaned) < 2 {
		return nil, nil
	}

	warnings, err := s.source.Check(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScreeningUnavailable, err)
	}
	return warnings, nil
}

func nonEmptyNames(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if t := strings.TrimSpace(n); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}

// StaticSource screens against a built-in table of known-bad pairs. Matching
// is case-insensitive and order-independent.
type StaticSource struct {
	pairs map[string]string
}

func NewStaticSource() *StaticSource {
	src := &StaticSource{pairs: make(map[string]string)}

	src.add("warfarin", "aspirin", "increased bleeding risk when combined")
	src.add("warfarin", "ibuprofen", "increased bleeding risk when combined")
	src.add("warfarin", "fluconazole", "fluconazole potentiates warfarin, monitor INR closely")
	src.add("aspirin", "ibuprofen", "ibuprofen may blunt the antiplatelet effect of aspirin")
	src.add("lisinopril", "spironolactone", "risk of hyperkalemia")
	src.add("lisinopril", "potassium chloride", "risk of hyperkalemia")
	src.add("simvastatin", "clarithromycin", "clarithromycin raises statin levels, myopathy risk")
	src.add("metformin", "contrast media", "hold metformin around iodinated contrast, lactic acidosis risk")
	src.add("tramadol", "sertraline", "risk of serotonin syndrome")
	src.add("tramadol", "fluoxetine", "risk of serotonin syndrome")
	src.add("methotrexate", "trimethoprim", "additive antifolate toxicity")
	src.add("digoxin", "amiodarone", "amiodarone raises digoxin levels, reduce digoxin dose")

	return src
}

func (s *StaticSource) add(a, b, note string) {
	s.pairs[pairKey(a, b)] = note
}

func (s *StaticSource) Check(_ context.Context, names []string) ([]string, error) {
	var warnings []string
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if note, ok := s.pairs[pairKey(names[i], names[j])]; ok {
				warnings = append(warnings, fmt.Sprintf("%s + %s: %s", names[i], names[j], note))
			}
		}
	}
	return warnings, nil
}

func pairKey(a, b string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// CachedSource caches screening results in Redis per sorted name set. Cache
// errors fall through to the underlying source; source errors are returned as
// is, so a failure is never served as an empty (clean) screen.
type CachedSource struct {
	client *redis.Client
	next   Source
	ttl    time.Duration
}

func NewCachedSource(client *redis.Client, next Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		client: client,
		next:   next,
		ttl:    ttl,
	}
}

func (c *CachedSource) Check(ctx context.Context, names []string) ([]string, error) {
	key := c.cacheKey(names)

	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		var warnings []string
		if err := json.Unmarshal([]byte(raw), &warnings); err == nil {
			return warnings, nil
		}
	}

	warnings, err := c.next.Check(ctx, names)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(warnings); err == nil {
		// Best effort: a failed SET only costs the next caller a lookup.
		_ = c.client.Set(ctx, key, data, c.ttl).Err()
	}

	return warnings, nil
}

func (c *CachedSource) cacheKey(names []string) string {
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(n)))
	}
	sort.Strings(lowered)
	return "screen:" + strings.Join(lowered, "|")
}
