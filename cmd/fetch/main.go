package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"metalsync/internal/app"
	"metalsync/internal/config"
	"metalsync/internal/logging"
	"metalsync/internal/orchestrator"
)

type output struct {
	Refresh *orchestrator.RefreshResult `json:"refresh,omitempty"`
	Status  orchestrator.Status         `json:"status"`
}

func main() {
	var (
		configPath string
		force      bool
		timeout    time.Duration
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.BoolVar(&force, "force", false, "spend one refresh from the quota and fetch from the network")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.New("info", "text").WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup")
	}

	out, code := run(ctx, a.Orchestrator, force)
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("close")
	}
	b, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		log.WithError(err).Fatal("encode")
	}
	fmt.Println(string(b))
	os.Exit(code)
}

// run performs a passive load, or with force restores the persisted state
// and spends one refresh, so a forced run makes a single network round.
// It returns exit status 1 when no quotes are available and an error is
// present.
func run(ctx context.Context, o *orchestrator.Orchestrator, force bool) (output, int) {
	var out output
	if force {
		o.Restore(ctx)
		res := o.RequestManualRefresh(ctx)
		out.Refresh = &res
	} else {
		o.Start(ctx)
	}
	out.Status = o.Status()
	if len(out.Status.Quotes) == 0 && out.Status.Error != "" {
		return out, 1
	}
	return out, 0
}
