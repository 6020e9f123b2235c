package browsertest

import (
	"context"
	"sync"

	"github.com/entrhq/forage/pkg/browser"
)

// Session is a fake browsing session: one main page plus siblings opened on demand.
type Session struct {
	Main *Page

	// SiblingErr makes OpenSibling fail.
	SiblingErr error

	mu       sync.Mutex
	siblings []*Page
}

// NewSession creates a session whose pages serve site.
func NewSession(site Site) *Session {
	return &Session{Main: NewPage(site)}
}

func (s *Session) Page() browser.Page {
	return s.Main
}

func (s *Session) OpenSibling(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.SiblingErr != nil {
		return nil, s.SiblingErr
	}
	p := NewPage(s.Main.Site)
	s.mu.Lock()
	s.siblings = append(s.siblings, p)
	s.mu.Unlock()
	return p, nil
}

// Siblings returns every page opened with OpenSibling.
func (s *Session) Siblings() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.siblings...)
}
