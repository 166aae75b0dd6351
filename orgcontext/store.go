// Package orgcontext holds who is signed in and which organization's data is
// in view. UI code receives a *Store handle and reads CurrentOrgID from it
// when initiating any data fetch.
package orgcontext

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/octabyte/mmm-dashboard/auth"
	"github.com/octabyte/mmm-dashboard/enums"
	"github.com/octabyte/mmm-dashboard/models"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"go.uber.org/zap"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotMember        = errors.New("user is not a member of the organization")
)

const DefaultLoginPath = "/login"

type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is an immutable snapshot. CurrentOrgID is empty when no
// organization is selected, and is otherwise one of User's memberships.
type State struct {
	Status       Status
	User         *models.User
	CurrentOrgID string
}

// IdentityFetcher performs the identity lookup. *client.Client satisfies it.
type IdentityFetcher interface {
	Me(ctx context.Context) (*models.User, error)
}

type Option func(*Store)

// WithSessions makes fetches check for a valid session first, skipping the
// identity call when there is none.
func WithSessions(src auth.SessionSource) Option {
	return func(s *Store) { s.sessions = src }
}

// WithSignOut sets the identity provider's sign-out hook.
func WithSignOut(fn func(ctx context.Context) error) Option {
	return func(s *Store) { s.signOut = fn }
}

// WithNavigator sets how SignOut sends the user to the login entry point.
func WithNavigator(fn func(path string)) Option {
	return func(s *Store) { s.navigate = fn }
}

func WithLoginPath(path string) Option {
	return func(s *Store) { s.loginPath = path }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	identity  IdentityFetcher
	selection SelectionStore
	sessions  auth.SessionSource
	signOut   func(ctx context.Context) error
	navigate  func(path string)
	loginPath string
	now       func() time.Time

	mu    sync.Mutex
	state State
	// generation increases with every fetch start and every forced sign-out;
	// a fetch only applies its result if it is still the latest.
	generation uint64
	switches   uint64

	// notifyMu is taken before mu is released so subscribers see
	// transitions in the order they were applied.
	notifyMu    sync.Mutex
	subscribers map[uint64]func(State)
	nextSub     uint64

	switchMu sync.Mutex
}

func New(identity IdentityFetcher, selection SelectionStore, opts ...Option) *Store {
	s := &Store{
		identity:    identity,
		selection:   selection,
		loginPath:   DefaultLoginPath,
		now:         time.Now,
		subscribers: map[uint64]func(State){},
	}
	if s.selection == nil {
		s.selection = NewMemorySelection()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.signOut == nil {
		if so, ok := s.sessions.(interface{ SignOut(context.Context) error }); ok {
			s.signOut = so.SignOut
		}
	}
	return s
}

// Start moves the store out of Uninitialized and runs the first identity
// fetch. Calling it again behaves like Refresh.
func (s *Store) Start(ctx context.Context) error {
	return s.fetch(ctx)
}

// Refresh re-runs the identity fetch, e.g. after creating an organization.
// A failed fetch leaves the store Unauthenticated and returns the cause.
func (s *Store) Refresh(ctx context.Context) error {
	return s.fetch(ctx)
}

func (s *Store) fetch(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen, switches := s.generation, s.switches
	next := s.state
	next.Status = StatusLoading
	s.commitLocked(next)

	if s.sessions != nil {
		sess, err := s.sessions.Session(ctx)
		if err != nil || !sess.Valid(s.now()) {
			s.mu.Lock()
			if gen == s.generation {
				s.commitLocked(State{Status: StatusUnauthenticated})
			} else {
				s.mu.Unlock()
			}
			if err != nil {
				return fmt.Errorf("read session: %w", err)
			}
			return nil
		}
	}

	user, err := s.identity.Me(ctx)
	var persisted string
	if err == nil {
		var loadErr error
		if persisted, loadErr = s.selection.Load(ctx); loadErr != nil {
			logger.LogWarn("failed to load organization selection", zap.Error(loadErr))
			persisted = ""
		}
	}

	s.mu.Lock()
	if gen != s.generation {
		// Superseded by a newer fetch or a sign-out.
		s.mu.Unlock()
		return nil
	}
	if err != nil || user == nil {
		s.commitLocked(State{Status: StatusUnauthenticated})
		if err == nil {
			err = ErrNotAuthenticated
		}
		return fmt.Errorf("identity fetch: %w", err)
	}

	preferred := persisted
	if s.switches != switches && s.state.CurrentOrgID != "" {
		// An explicit switch landed while fetching; keep it over the
		// value read from storage before the switch was persisted.
		preferred = s.state.CurrentOrgID
	}
	s.commitLocked(State{
		Status:       StatusAuthenticated,
		User:         user.Clone(),
		CurrentOrgID: ResolveSelection(user, preferred),
	})
	return nil
}

// ResolveSelection returns persisted when it is one of user's memberships,
// else the first membership, else "".
func ResolveSelection(user *models.User, persisted string) string {
	if user == nil || len(user.Organizations) == 0 {
		return ""
	}
	if user.HasOrganization(persisted) {
		return persisted
	}
	return user.Organizations[0].ID
}

// HandleSessionEvent applies an external session change. Without a valid
// session the store becomes Unauthenticated before returning; otherwise the
// identity is fetched again.
func (s *Store) HandleSessionEvent(ctx context.Context, ev auth.SessionEvent) error {
	if ev.Kind == enums.SessionSignedOut || !ev.Session.Valid(s.now()) {
		s.mu.Lock()
		s.generation++
		s.commitLocked(State{Status: StatusUnauthenticated})
		return nil
	}
	return s.fetch(ctx)
}

// Watch applies events until ctx is done or events is closed.
func (s *Store) Watch(ctx context.Context, events <-chan auth.SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.HandleSessionEvent(ctx, ev); err != nil {
				logger.LogWarn("session event handling failed",
					zap.String("kind", string(ev.Kind)),
					zap.Error(err),
				)
			}
		}
	}
}

// SwitchOrganization selects orgID and persists it for future starts. The
// in-memory selection is applied even if persisting fails.
func (s *Store) SwitchOrganization(ctx context.Context, orgID string) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.state.Status != StatusAuthenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if !s.state.User.HasOrganization(orgID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotMember, orgID)
	}
	s.switches++
	next := s.state
	next.CurrentOrgID = orgID
	s.commitLocked(next)

	if err := s.selection.Save(ctx, orgID); err != nil {
		return fmt.Errorf("persist organization selection: %w", err)
	}
	return nil
}

// SignOut clears the store and the persisted selection, signs out with the
// identity provider and navigates to the login path. Navigation happens
// even when a step fails.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	s.commitLocked(State{Status: StatusUnauthenticated})

	// Wait for a switch that is still persisting so its write cannot land
	// after the clear.
	s.switchMu.Lock()
	var errs []error
	if err := s.selection.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear organization selection: %w", err))
	}
	s.switchMu.Unlock()

	if s.signOut != nil {
		if err := s.signOut(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sign out: %w", err))
		}
	}
	if s.navigate != nil {
		s.navigate(s.loginPath)
	}
	return errors.Join(errs...)
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) CurrentOrgID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentOrgID
}

func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.User.Clone()
}

// Subscribe registers fn to receive every new state in the order the
// transitions were applied. fn runs synchronously and must not call back
// into the store; the state it receives is its own copy.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.subscribers, id)
			s.notifyMu.Unlock()
		})
	}
}

// commitLocked replaces the state and notifies subscribers. It must be called
// with mu held and releases it.
func (s *Store) commitLocked(next State) {
	s.state = next
	snapshot := next.clone()

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range s.subscribers {
		fn(snapshot.clone())
	}
}

func (st State) clone() State {
	st.User = st.User.Clone()
	return st
}

// CacheKey builds a client-side cache key from the organization id captured
// when a fetch was initiated, so results from different organizations never
// share an entry.
func CacheKey(orgID string, parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, url.PathEscape(orgID))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}
