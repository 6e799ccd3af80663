package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"upkeep/internal/app"
)

func main() {
	var (
		cfgPath string
		runJob  string
		list    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.StringVar(&runJob, "run", "", "run one job by name and exit")
	flag.BoolVar(&list, "list", false, "list registered jobs and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if list {
		for _, name := range a.Jobs() {
			fmt.Println(name)
		}
		_ = a.Stop(ctx)
		return
	}

	// Manual one-shot trigger, e.g. `upkeepd -run cache:prune`.
	if runJob != "" {
		err := a.RunJob(ctx, runJob)
		_ = a.Stop(ctx)
		if err != nil {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	// Best-effort readiness for systemd units with Type=notify; a no-op
	// elsewhere.
	_, _ = sd.SdNotify(false, sd.SdNotifyReady)

	<-ctx.Done()
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
}
