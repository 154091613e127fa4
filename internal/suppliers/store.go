package suppliers

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Mutation describes the outcome of an admin change. Persisted is false when
// the change was kept in memory but could not be written to the backend.
type Mutation struct {
	Supplier  string  `json:"proveedor"`
	Changed   bool    `json:"modificado"`
	Persisted bool    `json:"persistido"`
	Profile   Profile `json:"configuracion"`
}

// Store owns the supplier profiles and their compiled rules. Reads during
// anonymization and admin writes are serialized by a reader/writer lock.
type Store struct {
	backend        Backend
	reservedPrefix string
	logger         *zap.Logger

	mu       sync.RWMutex
	profiles map[string]Profile
	rules    map[string]*Ruleset

	saveMu sync.Mutex
}

// NewStore creates an empty store. Call Load to read the backend.
func NewStore(backend Backend, reservedPrefix string, logger *zap.Logger) *Store {
	return &Store{
		backend:        backend,
		reservedPrefix: reservedPrefix,
		logger:         logger,
		profiles:       make(map[string]Profile),
		rules:          make(map[string]*Ruleset),
	}
}

// Backend returns the durable storage behind the store.
func (s *Store) Backend() Backend { return s.backend }

// Load replaces the in-memory profiles with the backend's document. On
// failure the store is left empty and the error is returned for logging;
// it is never fatal.
func (s *Store) Load(ctx context.Context) error {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		s.Replace(nil)
		s.logger.Warn("Could not load supplier profiles, starting empty",
			zap.String("backend", s.backend.String()),
			zap.Error(err))
		return err
	}
	profiles := decodeProfiles(doc, s.logger)
	s.Replace(profiles)
	s.logger.Info("Supplier profiles loaded",
		zap.String("backend", s.backend.String()),
		zap.Int("suppliers", len(profiles)))
	return nil
}

// Replace swaps the whole set of profiles.
func (s *Store) Replace(profiles map[string]Profile) {
	nextProfiles := make(map[string]Profile, len(profiles))
	nextRules := make(map[string]*Ruleset, len(profiles))
	for id, p := range profiles {
		p = p.Clone()
		nextProfiles[id] = p
		nextRules[id] = compileProfile(id, p)
	}

	s.mu.Lock()
	s.profiles = nextProfiles
	s.rules = nextRules
	s.mu.Unlock()
}

// Save writes a snapshot of every profile to the backend. Saves are
// serialized so a later save never writes an older snapshot.
func (s *Store) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string]Profile, len(s.profiles))
	for id, p := range s.profiles {
		snapshot[id] = p.Clone()
	}
	s.mu.RUnlock()

	return s.backend.Save(ctx, snapshot)
}

// persist saves and logs failures; the in-memory state is kept either way.
func (s *Store) persist(ctx context.Context) bool {
	if err := s.Save(ctx); err != nil {
		s.logger.Error("Failed to persist supplier profiles",
			zap.String("backend", s.backend.String()),
			zap.Error(err))
		return false
	}
	return true
}

// Close performs a final persist.
func (s *Store) Close(ctx context.Context) error {
	return s.Save(ctx)
}

// IDs returns every known supplier id in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of known suppliers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Get returns a copy of one supplier's profile.
func (s *Store) Get(id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p.Clone(), nil
}

// Put creates or replaces a supplier's full profile and persists.
func (s *Store) Put(ctx context.Context, id string, p Profile) (Mutation, error) {
	if strings.TrimSpace(id) == "" {
		return Mutation{}, ErrBlankID
	}
	p = p.Clone()
	ruleset := compileProfile(id, p)

	s.mu.Lock()
	s.profiles[id] = p
	s.rules[id] = ruleset
	s.mu.Unlock()

	s.logger.Info("Supplier profile stored", zap.String("supplier", id))
	return Mutation{Supplier: id, Changed: true, Persisted: s.persist(ctx), Profile: p.Clone()}, nil
}

// AddValue appends one literal value to a field, creating the supplier if
// needed. Adding a value that is already present changes nothing.
func (s *Store) AddValue(ctx context.Context, id string, field string, value string) (Mutation, error) {
	if strings.TrimSpace(id) == "" {
		return Mutation{}, ErrBlankID
	}
	f, err := ParseField(field)
	if err != nil {
		return Mutation{}, err
	}
	if strings.TrimSpace(value) == "" {
		return Mutation{}, ErrBlankValue
	}

	s.mu.Lock()
	p := s.profiles[id].Clone()
	values := p.Values(f)
	changed := true
	for _, existing := range values {
		if existing == value {
			changed = false
			break
		}
	}
	if changed {
		p.SetValues(f, append(values, value))
	}
	s.profiles[id] = p
	s.rules[id] = compileProfile(id, p)
	s.mu.Unlock()

	s.logger.Info("Supplier value added",
		zap.String("supplier", id),
		zap.String("field", field),
		zap.Bool("changed", changed))
	return Mutation{Supplier: id, Changed: changed, Persisted: s.persist(ctx), Profile: p.Clone()}, nil
}

// Delete removes a supplier and persists. Unknown ids return ErrNotFound
// and leave the store untouched.
func (s *Store) Delete(ctx context.Context, id string) (Mutation, error) {
	s.mu.Lock()
	p, ok := s.profiles[id]
	if !ok {
		s.mu.Unlock()
		return Mutation{}, ErrNotFound
	}
	delete(s.profiles, id)
	delete(s.rules, id)
	s.mu.Unlock()

	s.logger.Info("Supplier profile deleted", zap.String("supplier", id))
	return Mutation{Supplier: id, Changed: true, Persisted: s.persist(ctx), Profile: p}, nil
}

// Rules returns the compiled rules of one supplier.
func (s *Store) Rules(id string) (*Ruleset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.rules[id]
	return rs, ok
}

// AllRules returns the compiled rules of every supplier whose id does not
// start with the reserved prefix, ordered by id.
func (s *Store) AllRules() []*Ruleset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Ruleset, 0, len(s.rules))
	for id, rs := range s.rules {
		if s.reservedPrefix != "" && strings.HasPrefix(id, s.reservedPrefix) {
			continue
		}
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Apply runs one supplier's rules over text. Unknown or empty ids leave the
// text unchanged.
func (s *Store) Apply(text, id string, rec Recorder) string {
	if id == "" {
		return text
	}
	rs, ok := s.Rules(id)
	if !ok {
		return text
	}
	return rs.Apply(text, rec)
}

// ApplyAll runs every non-reserved supplier's rules cumulatively.
func (s *Store) ApplyAll(text string, rec Recorder) string {
	for _, rs := range s.AllRules() {
		text = rs.Apply(text, rec)
	}
	return text
}
