// Package region owns the set of known region identities and the allocation
// of their numeric ids.
package region

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"

	"github.com/couchcryptid/case-data-etl/internal/domain"
)

var (
	// ErrDuplicateRegion is returned when a prior table repeats an id or a
	// composite key.
	ErrDuplicateRegion = errors.New("duplicate region")

	// ErrIDsExhausted is returned when no id above the current maximum is left.
	ErrIDsExhausted = errors.New("region id space exhausted")
)

// Observation is the region part of a source row.
type Observation struct {
	Location  domain.Location
	Latitude  string
	Longitude string
	FIPS      string
}

// Store maps composite keys and numeric ids to region identities. Identities
// are immutable once stored and are iterated in insertion order. A Store is
// not safe for concurrent mutation.
type Store struct {
	alt    domain.AltNames
	logger *slog.Logger

	byKey  map[string]*domain.RegionIdentity
	byID   map[uint32]*domain.RegionIdentity
	order  []*domain.RegionIdentity
	nextID uint32
	loaded int

	collisions map[string]struct{}
	onCreate   func(*domain.RegionIdentity)
}

// NewStore returns an empty store whose new identities take alternate names
// from alt.
func NewStore(alt domain.AltNames, logger *slog.Logger) *Store {
	return &Store{
		alt:        alt,
		logger:     logger,
		byKey:      make(map[string]*domain.RegionIdentity),
		byID:       make(map[uint32]*domain.RegionIdentity),
		nextID:     1,
		collisions: make(map[string]struct{}),
	}
}

// OnCreate registers fn to be called with each newly discovered identity
// before it is stored. fn may fill in fields the source row left empty.
func (s *Store) OnCreate(fn func(*domain.RegionIdentity)) {
	s.onCreate = fn
}

// Load populates an empty store from a previously exported table, keeping
// ids and order. The next allocated id is one above the highest loaded id.
func (s *Store) Load(identities []domain.RegionIdentity) error {
	if len(s.order) > 0 {
		return errors.New("region store already populated")
	}

	var maxID uint32
	for i := range identities {
		r := identities[i]
		if r.ID == 0 {
			return fmt.Errorf("region %q: id must be positive", r.LocationName)
		}
		if r.Level1 == "" {
			return fmt.Errorf("region %d: empty regionLevel1", r.ID)
		}
		if prev, ok := s.byID[r.ID]; ok {
			return fmt.Errorf("%w: id %d used by %q and %q", ErrDuplicateRegion, r.ID, prev.LocationName, r.LocationName)
		}
		key := r.Key()
		if prev, ok := s.byKey[key]; ok {
			return fmt.Errorf("%w: key %q used by ids %d and %d", ErrDuplicateRegion, key, prev.ID, r.ID)
		}

		s.checkCoordinates(&r)
		s.insert(key, &r)
		maxID = max(maxID, r.ID)
	}

	s.loaded = len(s.order)
	switch {
	case s.loaded == 0:
		s.nextID = 1
	case maxID == math.MaxUint32:
		s.nextID = 0
	default:
		s.nextID = maxID + 1
	}
	return nil
}

// Resolve returns the identity for the observation's location, creating it
// with the next id when the key is new. Existing identities are returned
// unchanged. created reports whether a new identity was allocated.
func (s *Store) Resolve(obs Observation) (r domain.RegionIdentity, created bool, err error) {
	loc := obs.Location.Normalize()
	key := loc.Key()

	if existing, ok := s.byKey[key]; ok {
		if existing.Location().Normalize() != loc {
			s.reportCollision(key, existing, loc)
		}
		return *existing, false, nil
	}

	if s.nextID == 0 {
		return domain.RegionIdentity{}, false, ErrIDsExhausted
	}

	identity := domain.BuildRegion(loc, s.alt)
	identity.ID = s.nextID
	identity.Latitude = obs.Latitude
	identity.Longitude = obs.Longitude
	identity.FIPS = obs.FIPS
	if s.onCreate != nil {
		s.onCreate(&identity)
	}

	s.insert(key, &identity)
	if s.nextID == math.MaxUint32 {
		s.nextID = 0
	} else {
		s.nextID++
	}

	s.logger.Info("adding missing region",
		"region_id", identity.ID,
		"location", identity.LocationName,
	)
	return identity, true, nil
}

// All yields every identity in insertion order: loaded identities first,
// then newly discovered ones.
func (s *Store) All() iter.Seq[domain.RegionIdentity] {
	return func(yield func(domain.RegionIdentity) bool) {
		for _, r := range s.order {
			if !yield(*r) {
				return
			}
		}
	}
}

// ByID returns the identity with the given id.
func (s *Store) ByID(id uint32) (domain.RegionIdentity, bool) {
	r, ok := s.byID[id]
	if !ok {
		return domain.RegionIdentity{}, false
	}
	return *r, true
}

// ByKey returns the identity with the given composite key.
func (s *Store) ByKey(key string) (domain.RegionIdentity, bool) {
	r, ok := s.byKey[key]
	if !ok {
		return domain.RegionIdentity{}, false
	}
	return *r, true
}

// Len returns the number of identities.
func (s *Store) Len() int { return len(s.order) }

// Loaded returns the number of identities that came from Load.
func (s *Store) Loaded() int { return s.loaded }

// Created returns the number of identities discovered since Load.
func (s *Store) Created() int { return len(s.order) - s.loaded }

// NextID returns the id the next new identity will receive, or 0 when the
// id space is exhausted.
func (s *Store) NextID() uint32 { return s.nextID }

// Collisions returns the number of distinct locations that shared a key
// with a differently named identity.
func (s *Store) Collisions() int { return len(s.collisions) }

func (s *Store) insert(key string, r *domain.RegionIdentity) {
	s.byKey[key] = r
	s.byID[r.ID] = r
	s.order = append(s.order, r)
}

// reportCollision warns once per distinct location spelling that maps onto
// an existing key.
func (s *Store) reportCollision(key string, existing *domain.RegionIdentity, loc domain.Location) {
	sig := key + "\x00" + loc.Level1 + "\x00" + loc.Level2 + "\x00" + loc.Level3
	if _, seen := s.collisions[sig]; seen {
		return
	}
	s.collisions[sig] = struct{}{}
	s.logger.Warn("region key collision",
		"key", key,
		"region_id", existing.ID,
		"existing", existing.LocationName,
		"incoming_level1", loc.Level1,
		"incoming_level2", loc.Level2,
		"incoming_level3", loc.Level3,
	)
}

func (s *Store) checkCoordinates(r *domain.RegionIdentity) {
	c, ok, err := domain.ParseCoordinates(r.Latitude, r.Longitude)
	switch {
	case err != nil:
		s.logger.Warn("unparsable region coordinates", "region_id", r.ID, "error", err)
	case !ok:
	case c.LooksSwapped():
		s.logger.Warn("region coordinates look swapped",
			"region_id", r.ID, "latitude", r.Latitude, "longitude", r.Longitude)
	case !c.InRange():
		s.logger.Warn("region coordinates out of range",
			"region_id", r.ID, "latitude", r.Latitude, "longitude", r.Longitude)
	}
}
