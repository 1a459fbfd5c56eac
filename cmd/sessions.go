package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/db"
	"github.com/brensch/gdelthelper/internal/downloader"
	"github.com/brensch/gdelthelper/internal/probe"
	"github.com/brensch/gdelthelper/internal/processor"
	"github.com/brensch/gdelthelper/internal/schema"
	"github.com/brensch/gdelthelper/internal/session"
)

// The session bodies below are shared by the CLI commands and the TUI.

func downloadSession(cfg config.Config, st *db.Store) func(context.Context, *session.Session, []int) error {
	return func(ctx context.Context, s *session.Session, years []int) error {
		if len(years) == 0 {
			return errors.New("no years selected (use --years or the years config key)")
		}
		f := downloader.New(cfg, s.Logger, downloader.WithRecorder(st), downloader.WithRunID(s.ID))
		res := f.DownloadYears(ctx, years, cfg.RawDir, s.Progress)
		if res.Cancelled {
			return context.Canceled
		}
		return nil
	}
}

func processSession(cfg config.Config, st *db.Store) func(context.Context, *session.Session) error {
	return func(ctx context.Context, s *session.Session) error {
		deps := processor.Deps{
			Resolver: schema.NewResolver(cfg, nil, st, s.Logger),
			Recorder: st,
			Logger:   s.Logger,
			RunID:    s.ID,
			Format:   cfg.OutputFormat,
			Progress: s.Progress,
		}
		stats, err := processor.ProcessDirectory(ctx, deps, cfg.RawDir, cfg.OutputPath, cfg.Processor.Clone())
		if err != nil {
			return err
		}
		if stats.Cancelled {
			return context.Canceled
		}
		return nil
	}
}

func detectSession(cfg config.Config) func(context.Context, *session.Session) error {
	return func(ctx context.Context, s *session.Session) error {
		p := probe.New(cfg, nil, s.Logger)
		latest := p.DetectLatestAvailableYear(ctx, cfg.MaxBackDays)
		s.Years(probe.SelectableYears(latest))
		return ctx.Err()
	}
}

// runSession runs fn as a background session and drains its queue in the
// foreground until it finishes. SIGINT and SIGTERM cancel the session.
// onEvent sees every non-log event; logs already reach the root handler.
func runSession(parent context.Context, kind string, fn func(context.Context, *session.Session) error, onEvent func(session.Event)) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := session.NewQueue(session.DefaultQueueSize)
	defer q.Close()
	runner := session.NewRunner(q, rootHandler, rootLevel)
	s, err := runner.Start(ctx, kind, fn)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(s.Wait)
	g.Go(func() error {
		return session.Drain(context.Background(), q, config.DefaultPollInterval, func(ev session.Event) bool {
			if ev.Kind == session.KindDone && ev.SessionID == s.ID {
				return false
			}
			if ev.Kind != session.KindLog && onEvent != nil {
				onEvent(ev)
			}
			return true
		})
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		getLogger().Debug("Session returned after cancellation.", slog.String("session", kind))
		return nil
	}
	return err
}

// progressPrinter rewrites one progress line on w.
func progressPrinter(w io.Writer) (func(session.Event), func()) {
	printed := false
	show := func(ev session.Event) {
		if ev.Kind != session.KindProgress {
			return
		}
		fmt.Fprintf(w, "\rProgress: %d/%d", ev.Done, ev.Total)
		printed = true
	}
	end := func() {
		if printed {
			fmt.Fprintln(w)
		}
	}
	return show, end
}
