package state

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Store holds the current View. One writer publishes, any number of readers
// load; readers never block and never see a partially built snapshot.
type Store struct {
	mu      sync.Mutex // serializes writers and guards changed
	changed chan struct{}
	current atomic.Pointer[View]
}

// Load returns the current view.
func (s *Store) Load() View {
	if v := s.current.Load(); v != nil {
		return *v
	}
	return View{}
}

// Snapshot returns the current snapshot, or nil before the first publish.
func (s *Store) Snapshot() *Snapshot {
	return s.Load().Snapshot
}

// Publish installs draft as the new current snapshot. The store assigns the
// revision and digest; the caller must not modify draft's slices afterwards.
func (s *Store) Publish(draft Snapshot) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.Load()
	snap := draft
	snap.Revision = prev.Revision() + 1
	snap.Digest = Digest(&snap)
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	s.current.Store(&View{Snapshot: &snap, Health: Health{LastAttempt: snap.FetchedAt}})
	s.notifyLocked()
	return &snap
}

// MarkFailed records a failed sync. The current snapshot stays in place.
func (s *Store) MarkFailed(err error, at time.Time) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Load()
	if next.Health.StaleSince.IsZero() {
		next.Health.StaleSince = at
	}
	next.Health.LastError = err
	next.Health.LastAttempt = at
	next.Health.ConsecutiveFailures++
	s.current.Store(&next)
	s.notifyLocked()
	return next
}

// Wait blocks until a snapshot newer than after is published.
func (s *Store) Wait(ctx context.Context, after uint64) (*Snapshot, error) {
	for {
		ch := s.waitChan()
		if snap := s.Snapshot(); snap != nil && snap.Revision > after {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Store) waitChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed == nil {
		s.changed = make(chan struct{})
	}
	return s.changed
}

func (s *Store) notifyLocked() {
	if s.changed != nil {
		close(s.changed)
		s.changed = nil
	}
}

// Digest fingerprints the content of a snapshot, ignoring revision and
// fetch time, so readers can skip work when nothing changed. Every field a
// reader renders must feed it.
func Digest(s *Snapshot) uint64 {
	h := xxhash.New()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	putFloat := func(v float64) { putInt(int64(math.Float64bits(v))) }
	putString := func(v string) {
		putInt(int64(len(v)))
		_, _ = h.WriteString(v)
	}
	putBool := func(v bool) {
		if v {
			putInt(1)
		} else {
			putInt(0)
		}
	}

	for _, t := range s.Torrents {
		putInt(t.ID)
		putString(t.Hash)
		putString(t.Name)
		putInt(int64(t.Status))
		putFloat(t.Progress)
		putInt(t.RateDown)
		putInt(t.RateUp)
		putInt(t.Size)
		putInt(t.Left)
		putInt(int64(t.ETA))
		putFloat(t.Ratio)
		putString(t.DownloadDir)
		putInt(t.AddedAt.Unix())
		putInt(t.DoneAt.Unix())
		putInt(int64(t.Peers))
		putInt(int64(t.PeersSending))
		putInt(int64(t.PeersGetting))
		putInt(t.DownloadLimit)
		putBool(t.DownloadLimited)
		putInt(t.UploadLimit)
		putBool(t.UploadLimited)
		putString(t.ErrorMessage)
		putInt(int64(len(t.Files)))
		for _, f := range t.Files {
			putInt(int64(f.Index))
			putString(f.Path)
			putInt(f.Size)
			putFloat(f.Completed)
			putInt(int64(f.Priority))
		}
		putInt(int64(len(t.Trackers)))
		for _, tr := range t.Trackers {
			putString(tr.Announce)
			putString(tr.Host)
			putString(tr.LastAnnounceResult)
			putBool(tr.LastAnnounceSucceeded)
			putInt(int64(tr.LastAnnouncePeerCount))
			putInt(int64(tr.Seeders))
			putInt(int64(tr.Leechers))
		}
	}
	putInt(s.Stats.RateDown)
	putInt(s.Stats.RateUp)
	putInt(s.Stats.FreeSpace)
	putInt(int64(s.Stats.Active))
	putInt(int64(s.Stats.Paused))
	putInt(int64(s.Stats.Total))
	putString(s.Session.Version)
	putInt(int64(s.Session.RPCVersion))
	putString(s.Session.DownloadDir)
	putInt(s.Session.SpeedLimitDown)
	putBool(s.Session.SpeedLimitDownEnabled)
	putInt(s.Session.SpeedLimitUp)
	putBool(s.Session.SpeedLimitUpEnabled)
	return h.Sum64()
}
