package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/snuz/internal/config"
	"github.com/vovakirdan/snuz/internal/groupstore"
	"github.com/vovakirdan/snuz/internal/log"
	"github.com/vovakirdan/snuz/internal/notify"
	"github.com/vovakirdan/snuz/internal/presence"
	"github.com/vovakirdan/snuz/internal/session"
)

const presenceHelp = `commands:
  sleep | wake | snooze
  users                      list everyone
  group                      show my group
  group create DAYS SLEEP WAKE [MEMBER...]   e.g. group create 7 23:00 07:00 bob carol
  status                     connection status
  quit`

func newPresenceCmd(opts *rootOptions) *cobra.Command {
	var (
		wsURL  string
		apiURL string
	)

	cmd := &cobra.Command{
		Use:   "presence USERNAME",
		Short: "Join the presence channel and report sleep events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			cfg.UpdateFrom(config.Config{Client: config.ClientConfig{WSBaseURL: wsURL, APIBaseURL: apiURL}})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runPresence(ctx, args[0], cfg.Client, cfg.MaxMessageBytes, opts.logger, os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&wsURL, "ws-url", "", "presence endpoint prefix, e.g. ws://localhost:8080/ws")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "REST API base URL")
	return cmd
}

func runPresence(ctx context.Context, username string, cfg config.ClientConfig, readLimit int64, logger *zerolog.Logger, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := groupstore.New(groupstore.Options{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.HTTPTimeout,
		RetryMax: cfg.HTTPRetryMax,
		Logger:   log.Component(logger, "groupstore"),
	})

	sink := notify.Multi{
		notify.NewWriterSink(out),
		notify.NewLogSink(log.Component(logger, "notify")),
	}
	mgr := presence.New(presence.Options{
		BaseURL:        cfg.WSBaseURL,
		ReconnectDelay: cfg.ReconnectDelay,
		DialTimeout:    cfg.DialTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		Dialer:         presence.WebSocketDialer{ReadLimit: readLimit},
		Inbound:        presence.NewDispatcher(sink, log.Component(logger, "dispatch")),
		Logger:         log.Component(logger, "presence"),
	})
	sess := session.New(api, mgr, log.Component(logger, "session"))

	updates, unsubscribe := mgr.Subscribe()
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mgr.Run(ctx)
		return nil
	})
	g.Go(func() error {
		for u := range updates {
			if u.Kind == presence.UpdateStatus {
				fmt.Fprintf(out, "* %s\n", describeStatus(u.Status))
			}
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if err := sess.Login(ctx, username); err != nil {
			return fmt.Errorf("login %s: %w", username, err)
		}
		fmt.Fprintf(out, "Logged in as %s\n%s\n", username, presenceHelp)
		err := commandLoop(ctx, sess, api, mgr, in, out)
		sess.Logout()
		return err
	})

	return g.Wait()
}

func describeStatus(st presence.Status) string {
	s := st.State.String()
	if st.Identity != "" {
		s += " as " + st.Identity
	}
	if st.Reason != "" {
		s += " (" + st.Reason + ")"
	}
	return s
}

func commandLoop(ctx context.Context, sess *session.Session, api *groupstore.Client, mgr *presence.Manager, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" || fields[0] == "exit" {
				return nil
			}
			if err := runCommand(ctx, sess, api, mgr, fields, out); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

func runCommand(ctx context.Context, sess *session.Session, api *groupstore.Client, mgr *presence.Manager, fields []string, out io.Writer) error {
	switch fields[0] {
	case "sleep":
		return sess.ToSleep(ctx)
	case "wake":
		return sess.ToAwake(ctx)
	case "snooze":
		return sess.ToSnooze(ctx)
	case "users":
		if err := sess.Refresh(ctx); err != nil {
			return err
		}
		for _, u := range sess.Users() {
			state := "awake"
			if u.IsAsleep {
				state = "asleep"
			}
			fmt.Fprintf(out, "%-16s score=%-3d %s snoozes=%d\n", u.Username, u.Score, state, u.CurrentSnoozeCounter)
		}
		return nil
	case "group":
		if len(fields) > 1 && fields[1] == "create" {
			return createGroup(ctx, sess, api, fields[2:], out)
		}
		if err := sess.Refresh(ctx); err != nil {
			return err
		}
		printGroup(out, sess.Group())
		return nil
	case "status":
		fmt.Fprintln(out, describeStatus(mgr.Status()))
		return nil
	case "help":
		fmt.Fprintln(out, presenceHelp)
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func printGroup(out io.Writer, m groupstore.Membership) {
	if !m.InGroup || m.Group == nil {
		fmt.Fprintln(out, "not in a group")
		return
	}
	g := m.Group
	fmt.Fprintf(out, "group %s (owner %s)\n", g.GroupID, g.OwnerUsername)
	fmt.Fprintf(out, "  sleep %s  wake %s  %d/%d days left since %s\n",
		g.ToSleepTime, g.ToWakeUpTime, g.DaysRemaining, g.DurationDays, g.StartDate)
	fmt.Fprintf(out, "  members: %s\n", strings.Join(g.Members, ", "))
}

var errGroupUsage = errors.New("usage: group create DAYS SLEEP WAKE [MEMBER...]")

// createGroup starts a group today. SLEEP and WAKE are local HH:MM.
func createGroup(ctx context.Context, sess *session.Session, api *groupstore.Client, args []string, out io.Writer) error {
	if len(args) < 3 {
		return errGroupUsage
	}
	days, err := strconv.Atoi(args[0])
	if err != nil {
		return errGroupUsage
	}

	now := time.Now()
	sleepAt, err := clockToday(now, args[1])
	if err != nil {
		return err
	}
	wakeAt, err := clockToday(now, args[2])
	if err != nil {
		return err
	}
	if !wakeAt.After(sleepAt) {
		wakeAt = wakeAt.AddDate(0, 0, 1)
	}

	group, err := api.CreateGroup(ctx, groupstore.CreateGroupRequest{
		OwnerUsername: sess.Identity(),
		Members:       args[3:],
		ToSleepTime:   sleepAt.UTC(),
		ToWakeUpTime:  wakeAt.UTC(),
		DurationDays:  days,
		StartDate:     now.UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created group %s\n", group.GroupID)

	if err := sess.Refresh(ctx); err != nil {
		return err
	}
	printGroup(out, sess.Group())
	return nil
}

func clockToday(now time.Time, hhmm string) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want HH:MM", hhmm)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}
