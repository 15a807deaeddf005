// Package session tracks the agent's attachment to a single watch page.
//
// A session is created per navigation and torn down on the next one; state
// accumulated against an old page must never leak into the new one, so all
// page-scoped cleanup registers here and runs exactly once.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/types"
)

// PageSession is one attachment to a watch page.
type PageSession struct {
	ID        string
	URL       string
	VideoID   string
	StartedAt time.Time

	mu       sync.Mutex
	owner    *types.Owner
	creator  *types.CreatorInfo
	checked  bool
	tornDown bool
	cleanups []func()
}

// New creates a session for the given watch page.
func New(url, videoID string) *PageSession {
	s := &PageSession{
		ID:        uuid.NewString(),
		URL:       url,
		VideoID:   videoID,
		StartedAt: time.Now(),
	}
	log.Debug().Str("session", s.ID).Str("video", videoID).Msg("Session started")
	return s
}

// Owner returns the resolved page owner, nil until resolution succeeds.
func (s *PageSession) Owner() *types.Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// SetOwner records the resolved owner.
func (s *PageSession) SetOwner(o *types.Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = o
}

// Creator returns the eligibility result and whether the check has run.
// A (nil, true) pair means checked and not eligible.
func (s *PageSession) Creator() (*types.CreatorInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creator, s.checked
}

// SetCreator records the eligibility result. The check runs once per
// session regardless of outcome.
func (s *PageSession) SetCreator(c *types.CreatorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creator = c
	s.checked = true
}

// OnTeardown registers cleanup to run when the session ends. Registering
// on a torn-down session runs the cleanup immediately.
func (s *PageSession) OnTeardown(fn func()) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Active reports whether the session has not been torn down.
func (s *PageSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.tornDown
}

// Teardown ends the session and runs registered cleanups in reverse
// registration order. Idempotent.
func (s *PageSession) Teardown() {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	log.Debug().Str("session", s.ID).Dur("lived", time.Since(s.StartedAt)).Msg("Session torn down")
}
