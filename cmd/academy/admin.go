package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnpath/academy-hub/config"
	"github.com/learnpath/academy-hub/internal/application/guard"
	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/infrastructure/external/authapi"
	"github.com/learnpath/academy-hub/internal/infrastructure/external/webrouter"
	"github.com/learnpath/academy-hub/internal/infrastructure/persistence/sqlite"
	"github.com/learnpath/academy-hub/internal/infrastructure/scheduler"
	"github.com/learnpath/academy-hub/internal/infrastructure/scheduler/jobs"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN SESSION CLIENT
// The CLI plays the browser: it keeps the session in a local SQLite file and
// runs every admin action through the session guard.
// ══════════════════════════════════════════════════════════════════════════════

var (
	authServer string
	sessionDB  string
	username   string
	password   string
	remote     bool
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin session client",
}

var adminLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session locally",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if username == "" {
			return errors.New("--username is required")
		}
		pw, err := readPassword(cmd)
		if err != nil {
			return err
		}
		return withGuard(cmd.Context(), func(ctx context.Context, g *guard.SessionGuard, _ *sqlite.KVStore) error {
			sess, err := g.Login(ctx, username, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s), session expires %s\n",
				sess.User.Username, sess.User.Role, sess.SessionExpiry.Local().Format(time.RFC1123))
			return nil
		})
	},
}

var adminLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session on the server and locally",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGuard(cmd.Context(), func(ctx context.Context, g *guard.SessionGuard, _ *sqlite.KVStore) error {
			if err := g.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		})
	},
}

var adminStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGuard(cmd.Context(), func(ctx context.Context, g *guard.SessionGuard, _ *sqlite.KVStore) error {
			out := cmd.OutOrStdout()
			if !g.CheckSession(ctx) {
				fmt.Fprintln(out, "no active session")
				return nil
			}
			if remote {
				d := g.Authorize(ctx, "")
				if !d.Allowed {
					fmt.Fprintf(out, "session rejected by server: redirect %s\n", d.Redirect)
					return nil
				}
				fmt.Fprintf(out, "%s (%s), %s remaining\n",
					d.Session.User.Username, d.Session.User.Role, d.Session.Remaining(time.Now()).Round(time.Minute))
				return nil
			}
			u, _ := g.CurrentUser(ctx)
			fmt.Fprintf(out, "%s (%s), not validated against the server\n", u.Username, u.Role)
			return nil
		})
	},
}

var adminWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session alive until it expires or is revoked",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.Features.IsEnabled(config.FeatureAdminSessionPolling, nil) {
			return fmt.Errorf("feature %s is disabled", config.FeatureAdminSessionPolling)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return withGuard(ctx, func(ctx context.Context, g *guard.SessionGuard, _ *sqlite.KVStore) error {
			return watchSession(ctx, cmd, g)
		})
	},
}

var adminOpenCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open an admin page through the route guard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		capability, ok := admin.RouteCapability(path)
		if !ok {
			return fmt.Errorf("%s is not an admin page", path)
		}
		return withGuard(cmd.Context(), func(ctx context.Context, g *guard.SessionGuard, store *sqlite.KVStore) error {
			target := path
			if d := g.AuthorizeRoute(ctx, path); !d.Allowed {
				log.Info("route guard redirected",
					logger.String("path", path),
					logger.String("capability", string(capability)),
					logger.String("redirect", d.Redirect))
				target = d.Redirect
			}
			router := webrouter.New(webrouter.Config{
				BaseURL: cfg.Navigation.SiteURL,
				Token:   webrouter.TokenFromStore(store),
				Logger:  log,
			})
			return report(cmd, router, navigate(ctx, router, target))
		})
	},
}

func init() {
	adminCmd.PersistentFlags().StringVar(&authServer, "server", "", "base URL of the auth API (default SESSION_AUTH_BASE_URL)")
	adminCmd.PersistentFlags().StringVar(&sessionDB, "session-db", "data/admin-session.db", "local session store")

	adminLoginCmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	adminLoginCmd.Flags().StringVarP(&password, "password", "p", "", "password; read from stdin when empty")
	adminStatusCmd.Flags().BoolVar(&remote, "remote", false, "validate the session against the server")

	adminCmd.AddCommand(adminLoginCmd)
	adminCmd.AddCommand(adminLogoutCmd)
	adminCmd.AddCommand(adminStatusCmd)
	adminCmd.AddCommand(adminWatchCmd)
	adminCmd.AddCommand(adminOpenCmd)
}

// withGuard opens the local store and builds a guard talking to the auth API.
func withGuard(ctx context.Context, fn func(context.Context, *guard.SessionGuard, *sqlite.KVStore) error) error {
	store, err := sqlite.Open(ctx, sessionDB)
	if err != nil {
		return err
	}
	defer store.Close()

	base := authServer
	if base == "" {
		base = cfg.Session.AuthBaseURL
	}
	api := authapi.NewClient(authapi.Config{
		BaseURL: base,
		Timeout: cfg.Session.AuthTimeout,
		Logger:  log,
	})
	g := guard.NewSessionGuard(api, store, timeutil.SystemClock{}, admin.Policy{
		TTL:             cfg.Session.TTL,
		InactivityLimit: cfg.Session.InactivityLimit,
	}, log)
	return fn(ctx, g, store)
}

func watchSession(ctx context.Context, cmd *cobra.Command, g *guard.SessionGuard) error {
	if !g.CheckSession(ctx) {
		return errors.New("no active session; run academy admin login")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poll := jobs.NewSessionPollJob(g, log, func(guard.Decision) { cancel() })

	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	sched := scheduler.NewScheduler(schedCfg)
	if err := sched.Register(poll, cfg.Session.PollInterval); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sched.Stop() }()

	fmt.Fprintf(cmd.OutOrStdout(), "watching session, revalidating every %s\n", cfg.Session.PollInterval)
	<-ctx.Done()

	if poll.Ended() {
		fmt.Fprintf(cmd.OutOrStdout(), "session ended: redirect %s\n", poll.LastDecision().Redirect)
	}
	return nil
}

func navigate(ctx context.Context, router guard.Router, target string) guard.Result {
	return guard.Navigate(ctx, router, target, guard.NavigateOptions{
		Retries:          cfg.Navigation.Retries,
		Delay:            cfg.Navigation.Delay,
		FallbackToWindow: cfg.Navigation.FallbackToWindow,
	}, nil)
}

// report prints the outcome of a navigation. A hard navigation is left to the user.
func report(cmd *cobra.Command, router *webrouter.Router, res guard.Result) error {
	out := cmd.OutOrStdout()
	strategies := make([]string, 0, len(res.Attempts))
	for _, s := range res.Strategies() {
		strategies = append(strategies, string(s))
	}
	switch {
	case res.OK:
		fmt.Fprintf(out, "opened %s (%d attempts)\n", res.URL, len(res.Attempts))
		return nil
	case res.NeedsHardNavigation:
		fmt.Fprintf(out, "routing failed after %s; open %s in a browser\n", strings.Join(strategies, ", "), router.URL(res.URL))
		return nil
	default:
		return res.Failure
	}
}

func readPassword(cmd *cobra.Command) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
