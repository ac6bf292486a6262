package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/liqing/syncrypto/cmd"
	"github.com/liqing/syncrypto/pkg/sync"
	"github.com/liqing/syncrypto/pkg/timeutil"
)

// syncLoop runs engine.Sync repeatedly, sleeping intervalSeconds between
// runs, until a termination signal arrives. A failed sync is reported as a
// warning rather than aborting the loop, since a transient failure (a
// locked folder, a momentarily unreadable file) shouldn't stop future
// attempts.
func syncLoop(engine *sync.Engine, intervalSeconds int) error {
	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)

	interval := time.Duration(intervalSeconds) * time.Second
	timer := time.NewTimer(0)
	defer timeutil.StopAndDrainTimer(timer)

	for {
		select {
		case sig := <-signalTermination:
			_ = sig
			return nil
		case <-timer.C:
			if err := engine.Sync(); err != nil {
				cmd.Warning(err.Error())
			}
			timer.Reset(interval)
		}
	}
}
