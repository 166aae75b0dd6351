package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/octabyte/mmm-dashboard/auth"
	"github.com/redis/go-redis/v9"
)

const DefaultSelectionKey = "mmm:current_org_id"

// SelectionStore persists the current-organization selection under a single
// key, shared by every dashboard process using the same namespace.
type SelectionStore struct {
	client *redis.Client
	key    string
}

// NewSelectionStore stores under DefaultSelectionKey, or under
// "<namespace>:<DefaultSelectionKey>" when namespace is set (e.g. a user id).
func NewSelectionStore(client *redis.Client, namespace string) *SelectionStore {
	key := DefaultSelectionKey
	if namespace != "" {
		key = namespace + ":" + key
	}
	return &SelectionStore{client: client, key: key}
}

func (s *SelectionStore) Key() string {
	return s.key
}

func (s *SelectionStore) Load(ctx context.Context) (string, error) {
	v, err := Get(ctx, s.client, s.key)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", s.key, err)
	}
	return v, nil
}

func (s *SelectionStore) Save(ctx context.Context, orgID string) error {
	if orgID == "" {
		return s.Clear(ctx)
	}
	if err := Set(ctx, s.client, s.key, orgID, 0); err != nil {
		return fmt.Errorf("save %s: %w", s.key, err)
	}
	return nil
}

func (s *SelectionStore) Clear(ctx context.Context) error {
	if err := Del(ctx, s.client, s.key); err != nil {
		return fmt.Errorf("clear %s: %w", s.key, err)
	}
	return nil
}

var ErrNoSubject = errors.New("session has no subject")

// UserSelectionStore keeps one selection per user, keyed by the subject of
// the session current at each call.
type UserSelectionStore struct {
	client   *redis.Client
	sessions auth.SessionSource
}

func NewUserSelectionStore(client *redis.Client, sessions auth.SessionSource) *UserSelectionStore {
	return &UserSelectionStore{client: client, sessions: sessions}
}

// UserNamespace is the namespace a subject's selection is stored under.
func UserNamespace(subject string) string {
	return "user:" + subject
}

func (s *UserSelectionStore) forSession(ctx context.Context) (*SelectionStore, error) {
	sess, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if sess == nil || sess.Subject == "" {
		return nil, ErrNoSubject
	}
	return NewSelectionStore(s.client, UserNamespace(sess.Subject)), nil
}

func (s *UserSelectionStore) Load(ctx context.Context) (string, error) {
	store, err := s.forSession(ctx)
	if err != nil {
		return "", err
	}
	return store.Load(ctx)
}

func (s *UserSelectionStore) Save(ctx context.Context, orgID string) error {
	store, err := s.forSession(ctx)
	if err != nil {
		return err
	}
	return store.Save(ctx, orgID)
}

func (s *UserSelectionStore) Clear(ctx context.Context) error {
	store, err := s.forSession(ctx)
	if err != nil {
		return err
	}
	return store.Clear(ctx)
}
