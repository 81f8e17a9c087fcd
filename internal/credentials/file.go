package credentials

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// DefaultSaveDelay is how long the file-backed storage waits after the
// first mutation before autosaving.
const DefaultSaveDelay = 30 * time.Minute

// FileStorage is a Storage that persists to a flat configuration file.
// Any mutation arms a one-shot save timer (unless one is already armed);
// a negative save delay disables autosave entirely. Writes are atomic:
// a temp file in the same directory, then rename.
type FileStorage struct {
	*Storage

	file     string
	confRoot string

	timerMu      sync.Mutex
	timer        *time.Timer
	timerRunning bool
	saveDelay    time.Duration
}

func NewFileStorage(file string) *FileStorage {
	return &FileStorage{
		Storage:   NewStorage(),
		file:      file,
		confRoot:  "credentials",
		saveDelay: DefaultSaveDelay,
	}
}

// SetConfigRoot changes the top-level key entries are stored under
// (default "credentials").
func (s *FileStorage) SetConfigRoot(root string) {
	s.confRoot = root
}

// SetSaveDelay adjusts the autosave debounce. A negative delay disables
// autosave and stops any pending timer.
func (s *FileStorage) SetSaveDelay(delay time.Duration) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if delay < 0 && s.timerRunning {
		s.timer.Stop()
		s.timerRunning = false
	}
	s.saveDelay = delay
}

func (s *FileStorage) InsertOrUpdate(id beeeon.DeviceID, c Credentials) {
	s.Storage.InsertOrUpdate(id, c)
	s.saveLater()
}

func (s *FileStorage) Remove(id beeeon.DeviceID) {
	s.Storage.Remove(id)
	s.saveLater()
}

func (s *FileStorage) Clear() {
	s.Storage.Clear()
	s.saveLater()
}

// Load reads the backing file if one is configured. A missing or
// unreadable file is logged and treated as an empty store, so a fresh
// gateway starts clean.
func (s *FileStorage) Load() {
	if s.file == "" {
		return
	}

	data, err := os.ReadFile(s.file)
	if err != nil {
		log.Warn().Err(err).Str("file", s.file).Msg("credentials: could not load, starting empty")
		return
	}

	conf, err := UnmarshalConfig(data)
	if err != nil {
		log.Warn().Err(err).Str("file", s.file).Msg("credentials: could not parse, starting empty")
		return
	}

	s.Storage.Load(conf, s.confRoot)
}

// Save writes the store out immediately, cancelling any pending autosave.
func (s *FileStorage) Save() error {
	s.timerMu.Lock()
	if s.timerRunning {
		s.timer.Stop()
		s.timerRunning = false
	}
	s.timerMu.Unlock()

	return s.saveNow()
}

func (s *FileStorage) saveNow() error {
	if s.file == "" {
		return nil
	}

	conf := NewConfigTree()
	s.Storage.Save(conf, s.confRoot)

	dir := filepath.Dir(s.file)
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(conf.Marshal()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.file); err != nil {
		return err
	}

	log.Info().Str("file", s.file).Msg("credentials saved")
	return nil
}

// saveLater arms the one-shot autosave timer unless one is already armed
// or autosave is disabled. The timerRunning flag is guarded by timerMu,
// so double scheduling is not possible.
func (s *FileStorage) saveLater() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timerRunning || s.saveDelay < 0 {
		return
	}

	s.timerRunning = true
	log.Debug().Dur("delay", s.saveDelay).Msg("credentials: save scheduled")

	s.timer = time.AfterFunc(s.saveDelay, func() {
		s.timerMu.Lock()
		s.timerRunning = false
		s.timerMu.Unlock()

		if err := s.saveNow(); err != nil {
			log.Error().Err(err).Str("file", s.file).Msg("credentials: autosave failed")
		}
	})
}

// Close flushes the store to disk and stops the autosave timer, matching
// the save-on-destruction behavior callers rely on at shutdown.
func (s *FileStorage) Close() error {
	return s.Save()
}
