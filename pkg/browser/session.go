package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is an isolated browsing context owned by one request. It is issued
// by Pool.Acquire and must be returned with Pool.Release.
type Session struct {
	// ID identifies the session in logs
	ID string

	// CreatedAt is when the session was opened
	CreatedAt time.Time

	page        Page
	instance    Instance
	releaseOnce sync.Once
}

func newSession(page Page, inst Instance) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		page:      page,
		instance:  inst,
	}
}

// Page returns the session's page.
func (s *Session) Page() Page {
	return s.page
}

// OpenSibling opens an additional isolated page on the same browser. Siblings
// do not hold pool permits, so a request already holding a session can fan
// out without waiting on itself. The caller must close the returned page.
func (s *Session) OpenSibling(ctx context.Context) (Page, error) {
	page, err := s.instance.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open sibling page: %w", err)
	}
	return page, nil
}
