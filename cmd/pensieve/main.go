package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pensieve-app/pensieve/internal/client"
	"github.com/pensieve-app/pensieve/internal/client/config"
	"github.com/pensieve-app/pensieve/internal/client/store"
)

const usage = `Usage: pensieve <command> [flags]

Commands:
  login <token>   store the sync token for this device
  logout          forget the token and reset sync cursors
  sync            run one sync cycle now
  status          show sync status and pending changes
  daemon          sync periodically until interrupted

Flags (also honored from a JSON file via -c/-config):
  -a addr   server base URL
  -f path   local database file
  -w        sync over Wi-Fi only
  -t secs   sync timeout
  -i secs   daemon interval
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	app, err := client.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, app, command); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *client.App, command string) error {
	switch command {
	case "login":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: pensieve login <token>")
		}
		if err := app.SetToken(ctx, os.Args[2]); err != nil {
			return err
		}
		fmt.Println("token stored")
		return nil

	case "logout":
		if err := app.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil

	case "sync":
		result, err := app.RunSync(ctx, func(percent int) {
			fmt.Printf("\rinitial sync: %3d%%", percent)
			if percent == 100 {
				fmt.Println()
			}
		})
		if err != nil {
			return err
		}
		fmt.Printf("sync %s: %d changes\n", result.Outcome, result.Changes())
		if err := result.FirstError(); err != nil {
			fmt.Printf("first failure: %v\n", err)
		}
		return nil

	case "status":
		for _, entity := range store.Entities {
			m := app.Repos.Meta.Get(ctx, entity)
			if m == nil {
				fmt.Printf("%-10s never synced\n", entity)
				continue
			}
			line := fmt.Sprintf("%-10s %s  pulled %s", entity, m.LastStatus,
				time.UnixMilli(m.LastPulledAt).Format("2006-01-02 15:04:05"))
			if m.LastError != "" {
				line += "  (" + m.LastError + ")"
			}
			fmt.Println(line)
		}
		fmt.Printf("pending: %d\n", app.Service.TotalPending(ctx))
		if app.Reminder.ShouldShow(ctx) {
			fmt.Println("note: no successful sync in over 24 hours")
		}
		return nil

	case "daemon":
		err := app.RunDaemon(ctx, app.Config.DaemonInterval, nil)
		if err == context.Canceled {
			return nil
		}
		return err

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}
