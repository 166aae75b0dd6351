package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/octabyte/mmm-dashboard/auth"
	"github.com/octabyte/mmm-dashboard/client"
	"github.com/octabyte/mmm-dashboard/config"
	"github.com/octabyte/mmm-dashboard/db/redis"
	"github.com/octabyte/mmm-dashboard/enums"
	"github.com/octabyte/mmm-dashboard/orgcontext"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newOrgCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Inspect or change the current organization",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "current",
			Short: "Show the signed-in user and the selected organization",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd.Context(), nil, func(store *orgcontext.Store) error {
					return printState(cmd.OutOrStdout(), store.Snapshot())
				})
			},
		},
		&cobra.Command{
			Use:   "switch <org-id>",
			Short: "Select an organization and remember it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd.Context(), nil, func(store *orgcontext.Store) error {
					if err := store.SwitchOrganization(cmd.Context(), args[0]); err != nil {
						return err
					}
					return printState(cmd.OutOrStdout(), store.Snapshot())
				})
			},
		},
		&cobra.Command{
			Use:   "signout",
			Short: "Forget the selected organization and sign out",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				navigate := orgcontext.WithNavigator(func(path string) {
					fmt.Fprintf(cmd.OutOrStdout(), "signed out, continue at %s\n", path)
				})
				return a.withStore(cmd.Context(), []orgcontext.Option{navigate}, func(store *orgcontext.Store) error {
					return store.SignOut(cmd.Context())
				})
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Follow session changes published on Redis and print each state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.watch(cmd.Context(), cmd.OutOrStdout())
			},
		},
	)
	return cmd
}

// withStore builds the API client and context store, runs the identity
// fetch, then calls fn.
func (a *app) withStore(ctx context.Context, opts []orgcontext.Option, fn func(*orgcontext.Store) error) error {
	sessions := auth.NewMemorySource()
	if a.cfg.AccessToken != "" {
		sessions.Set(*auth.SessionFromJWT(a.cfg.AccessToken))
	}

	store, closeStore, err := a.newStore(ctx, sessions, opts...)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Start(ctx); err != nil {
		return err
	}
	return fn(store)
}

func (a *app) newStore(ctx context.Context, sessions *auth.MemorySource, opts ...orgcontext.Option) (*orgcontext.Store, func(), error) {
	api, err := client.New(client.Config{BaseURL: a.cfg.APIURL, Timeout: a.cfg.BackendTimeout, UserAgent: a.cfg.ServiceName}, sessions)
	if err != nil {
		return nil, nil, err
	}

	selection, closeSelection, err := openSelection(ctx, a.cfg, sessions)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]orgcontext.Option{orgcontext.WithSessions(sessions)}, opts...)
	return orgcontext.New(api, selection, opts...), closeSelection, nil
}

// openSelection picks the configured selection store. The Redis store is
// shared between processes, so it keys each selection by the session subject.
func openSelection(ctx context.Context, cfg *config.Config, sessions auth.SessionSource) (orgcontext.SelectionStore, func(), error) {
	noop := func() {}
	switch cfg.SelectionStore {
	case config.SelectionMemory:
		return orgcontext.NewMemorySelection(), noop, nil
	case config.SelectionRedis:
		rc, err := redis.NewRedisClient(ctx, redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, nil, err
		}
		return redis.NewUserSelectionStore(rc, sessions), func() { _ = rc.Close() }, nil
	default:
		path := cfg.SelectionPath
		if path == "" {
			var err error
			if path, err = orgcontext.DefaultSelectionPath(); err != nil {
				return nil, nil, err
			}
		}
		return orgcontext.NewFileSelection(path), noop, nil
	}
}

// watch mirrors Redis session events into an in-process session source and
// lets the store follow that source until ctx is cancelled.
func (a *app) watch(ctx context.Context, out io.Writer) error {
	rc, err := redis.NewRedisClient(ctx, redis.Config{Addr: a.cfg.RedisAddr, Password: a.cfg.RedisPassword, DB: a.cfg.RedisDB})
	if err != nil {
		return err
	}
	defer rc.Close()

	remote, err := redis.SessionEvents(ctx, rc, a.cfg.SessionEventsChannel)
	if err != nil {
		return err
	}

	sessions := auth.NewMemorySource()
	local, cancelLocal := sessions.Subscribe()
	defer cancelLocal()

	store, closeStore, err := a.newStore(ctx, sessions)
	if err != nil {
		return err
	}
	defer closeStore()

	unsubscribe := store.Subscribe(func(st orgcontext.State) {
		if err := printState(out, st); err != nil {
			logger.LogWarn("failed to print state", zap.Error(err))
		}
	})
	defer unsubscribe()

	if a.cfg.AccessToken != "" {
		sessions.Set(*auth.SessionFromJWT(a.cfg.AccessToken))
	} else if err := store.Start(ctx); err != nil {
		return err
	}

	go store.Watch(ctx, local)
	for ev := range remote {
		if ev.Kind == enums.SessionSignedOut || ev.Session == nil {
			sessions.Clear()
			continue
		}
		sessions.Set(*ev.Session)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func printState(w io.Writer, st orgcontext.State) error {
	if st.User == nil {
		_, err := fmt.Fprintf(w, "%s\n", st.Status)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s as %s\n", st.Status, st.User.Email); err != nil {
		return err
	}
	for _, m := range st.User.Organizations {
		marker := " "
		if m.ID == st.CurrentOrgID {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s\t%s\t%s\n", marker, m.ID, m.Name, m.Role); err != nil {
			return err
		}
	}
	return nil
}
