// cmd/preflight/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/config"
	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/probe"
	"github.com/hamed0406/pingstatus/internal/repo/jsonfile"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fail(err.Error())
		os.Exit(1)
	}
	ok("config valid, ADDR=" + cfg.Addr)

	if len(cfg.AdminAPIKeys) == 0 && len(cfg.PublicAPIKeys) == 0 {
		warn("no API keys configured; the control API is open to anyone who can reach ADDR.")
	} else if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; job changes through the API are closed.")
	}

	if cfg.BotToken == "" || cfg.AdminID == 0 {
		warn("BOT_TOKEN or ADMIN_USER_ID missing; reports will not reach Telegram.")
	} else {
		ok("telegram bot token " + config.MaskToken(cfg.BotToken) + ", admin " + fmt.Sprint(cfg.AdminID))
	}

	if p, err := exec.LookPath(cfg.PingBinary); err != nil {
		fail("ping binary " + cfg.PingBinary + " not found in PATH.")
	} else {
		ok("ping binary " + p)
		if cfg.DefaultIntervalSec < 0.2 {
			checkFastInterval(cfg, warn, ok)
		}
	}

	// read-only: a server may be writing the same file
	switch jobs, err := jsonfile.Read(cfg.JobsPath); {
	case errors.Is(err, os.ErrNotExist):
		warn("job store " + cfg.JobsPath + " does not exist yet; it will be created empty.")
	case err != nil:
		fail("job store " + cfg.JobsPath + ": " + err.Error() + " (the server will refuse to start)")
	default:
		ok(fmt.Sprintf("job store %s: %d jobs", cfg.JobsPath, len(jobs)))
	}

	switch {
	case cfg.DatabaseURL != "":
		ok("DATABASE_URL present; run history in postgres")
	case cfg.HistoryPath != "":
		ok("run history in sqlite at " + cfg.HistoryPath)
	default:
		warn("DATABASE_URL and HISTORY_PATH empty; run history is kept in memory only.")
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}

// checkFastInterval tries the default interval against loopback, since most
// systems reserve intervals below 200ms for root.
func checkFastInterval(cfg *config.Config, warn, ok func(string)) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	p := probe.NewPinger(cfg.PingBinary, 5*time.Second, zap.NewNop())
	res := p.Run(ctx, probe.Request{Target: "127.0.0.1", IntervalSec: cfg.DefaultIntervalSec, Count: 2})
	if res.Outcome == domain.OutcomeError && res.Err.Kind == domain.ErrUnprivileged {
		warn(fmt.Sprintf("default interval %gs needs privileges here: %s", cfg.DefaultIntervalSec, strings.TrimSpace(res.Err.Detail)))
		return
	}
	ok(fmt.Sprintf("default interval %gs accepted by ping", cfg.DefaultIntervalSec))
}
