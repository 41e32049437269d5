package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/xiaot623/blogpulse/internal/config"
	"github.com/xiaot623/blogpulse/internal/page"
	"github.com/xiaot623/blogpulse/internal/sessionapi"
	"github.com/xiaot623/blogpulse/internal/tracker"
)

type browseOptions struct {
	APIURL    string
	Referrer  string
	UserAgent string
	Paths     []string
}

func defaultUserAgent() string {
	return fmt.Sprintf("Mozilla/5.0 (X11; %s %s) sessionctl/1.0", runtime.GOOS, runtime.GOARCH)
}

func runBrowse(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := newFlagSet("browse")
	apiURL := fs.String("api", cfg.APIURL, "session API base URL")
	referrer := fs.String("referrer", "", "inbound referrer")
	userAgent := fs.String("ua", defaultUserAgent(), "user agent to report")
	paths := fs.String("paths", "/,/posts,/about", "comma-separated paths visited with n")
	fs.Parse(args)

	return browse(ctx, cfg, log, browseOptions{
		APIURL:    *apiURL,
		Referrer:  *referrer,
		UserAgent: *userAgent,
		Paths:     splitPaths(*paths),
	}, os.Stdin)
}

// browse opens a tracked page on the terminal in. The terminal is put into
// raw mode before any session exists, so a failure there leaves nothing open.
func browse(ctx context.Context, cfg *config.Config, log *slog.Logger, opts browseOptions, in *os.File) error {
	fd := int(in.Fd())
	restore, err := page.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer restore()

	client := sessionapi.NewClient(opts.APIURL,
		sessionapi.WithBeaconGrace(cfg.BeaconGrace),
		sessionapi.WithLogger(log))
	pg := page.New(page.TerminalEnvironment(fd, opts.UserAgent, opts.Referrer))
	tr := tracker.New(client, pg,
		tracker.WithHeartbeatInterval(cfg.HeartbeatInterval),
		tracker.WithSessionTimeout(cfg.SessionTimeout),
		tracker.WithRequestTimeout(cfg.RequestTimeout),
		tracker.WithLogger(log))

	// A terminating signal closes the page the same way a killed tab does.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sig:
			restore()
			pg.Unload()
			flush(client, cfg.BeaconGrace)
			os.Exit(0)
		case <-done:
		}
	}()

	tr.Initialize(ctx, "")
	if id := tr.CurrentSessionID(); id != "" {
		fmt.Printf("session %s\r\n", id)
	} else {
		fmt.Print("no session, browsing untracked\r\n")
	}
	fmt.Print("n: next page  h: hide/show  q: quit\r\n")

	term := &page.Terminal{
		Page:  pg,
		Paths: opts.Paths,
		OnNavigate: func(path string) {
			tr.RecordPageView(path)
			fmt.Printf("-> %s\r\n", path)
		},
	}
	runErr := term.Run(in)

	pg.Unload()
	flush(client, cfg.BeaconGrace)
	return runErr
}

// flush waits for in-flight beacons, giving up after the beacon grace period.
func flush(client *sessionapi.Client, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace+time.Second)
	defer cancel()
	_ = client.Flush(ctx)
}
