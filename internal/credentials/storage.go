package credentials

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Storage is the in-memory credentials map: device id to credentials, a
// reader-writer lock, and a type-to-factory table used on load. The
// built-in factories cover password and pin; RegisterFactory adds more.
type Storage struct {
	mu          sync.RWMutex
	credentials map[beeeon.DeviceID]Credentials
	factories   map[string]Factory
}

func NewStorage() *Storage {
	return &Storage{
		credentials: make(map[beeeon.DeviceID]Credentials),
		factories: map[string]Factory{
			TypePassword: CreatePasswordCredentials,
			TypePin:      CreatePinCredentials,
		},
	}
}

// RegisterFactory adds a user-registered credential type. Must be called
// before Load sees entries of that type.
func (s *Storage) RegisterFactory(typ string, f Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[typ] = f
}

func (s *Storage) Find(id beeeon.DeviceID) (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[id]
	return c, ok
}

func (s *Storage) InsertOrUpdate(id beeeon.DeviceID, c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertOrUpdateUnlocked(id, c)
}

func (s *Storage) insertOrUpdateUnlocked(id beeeon.DeviceID, c Credentials) {
	s.credentials[id] = c
}

func (s *Storage) Remove(id beeeon.DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeUnlocked(id)
}

func (s *Storage) removeUnlocked(id beeeon.DeviceID) {
	delete(s.credentials, id)
}

func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearUnlocked()
}

func (s *Storage) clearUnlocked() {
	s.credentials = make(map[beeeon.DeviceID]Credentials)
}

// Save serializes every entry into conf under root.<device>.<field>.
func (s *Storage) Save(conf *ConfigTree, root string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.saveUnlocked(conf, root)
}

func (s *Storage) saveUnlocked(conf *ConfigTree, root string) {
	ids := make([]beeeon.DeviceID, 0, len(s.credentials))
	for id := range s.credentials {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s.credentials[id].Save(conf, id, root)
	}
}

// Load iterates the keys directly under root, parsing each as a DeviceID
// and constructing the entry via the factory its type field names.
// Malformed ids, unknown types and per-entry parse failures are logged
// and skipped; the load as a whole never aborts over a single entry.
func (s *Storage) Load(conf *ConfigTree, root string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range conf.KeysAt(root) {
		id, err := beeeon.ParseDeviceID(key)
		if err != nil {
			log.Warn().Str("key", key).Msg("credentials: expected a device id, skipping entry")
			continue
		}

		c, err := s.createCredential(conf.View(root + "." + key))
		if err != nil {
			log.Warn().Err(err).Str("device", key).Msg("credentials: skipping malformed entry")
			continue
		}
		s.insertOrUpdateUnlocked(id, c)
	}
}

func (s *Storage) createCredential(view ConfigView) (Credentials, error) {
	typ, err := view.MustGet("type")
	if err != nil {
		return nil, err
	}
	factory, ok := s.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized credential type %q", beeeon.ErrInvalidArgument, typ)
	}
	return factory(view)
}
