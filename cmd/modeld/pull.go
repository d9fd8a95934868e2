package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/allenai/olmoe-modeld/internal/acquire"
	"github.com/allenai/olmoe-modeld/internal/domain"
	"github.com/allenai/olmoe-modeld/internal/infra/config"
	"github.com/allenai/olmoe-modeld/internal/infra/logger"
	"github.com/allenai/olmoe-modeld/internal/store"
	"github.com/spf13/cobra"
)

var pullForce bool

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the model artifact in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull()
	},
}

func init() {
	pullCmd.Flags().BoolVarP(&pullForce, "force", "f", false, "re-download even if the model is already present")
}

func runPull() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// The progress bar owns stdout
	log := logger.Discard()

	st, err := store.NewPersistentStore(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer st.Close()

	fetch := acquire.NewHTTPFetcher(cfg.Model.URL, nil)
	mgr := acquire.NewManager(cfg, log, st, fetch)

	if mgr.Reconcile() && !pullForce {
		fmt.Printf("Model already present: %s\n", cfg.Model.Path)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	if err := mgr.StartDownload(ctx); err != nil {
		return err
	}

	done := mgr.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastBytes int64

loop:
	for {
		select {
		case <-ctx.Done():
			mgr.Cancel()
			<-done
			break loop
		case <-done:
			break loop
		case <-ticker.C:
			state := mgr.State()
			delta := state.DownloadedBytes - lastBytes
			lastBytes = state.DownloadedBytes

			// Instantaneous speed over the last tick
			speedMbps := float64(delta) * 8 / (1024 * 1024)
			renderProgress(state, startedAt, speedMbps, false)
		}
	}

	state := mgr.State()
	if state.Error != "" {
		fmt.Println()
		return errors.New(state.Error)
	}

	renderProgress(state, startedAt, 0, true)
	fmt.Printf("\nModel ready: %s\n", cfg.Model.Path)
	return nil
}

func renderProgress(state domain.DownloadState, startedAt time.Time, speedMbps float64, final bool) {
	current := state.DownloadedBytes
	total := state.TotalBytes
	if total == 0 {
		return
	}

	elapsed := time.Since(startedAt)
	percent := state.Progress * 100

	displaySpeed := speedMbps
	etaStr := "calc..."

	if final {
		percent = 100.0

		// Guard against division by zero or sub-millisecond durations
		seconds := elapsed.Seconds()
		if seconds < 0.1 {
			seconds = 0.1
		}

		avgBytesPerSec := float64(current) / seconds
		displaySpeed = (avgBytesPerSec * 8) / (1024 * 1024)
	} else {
		avgBytesPerSec := float64(current) / elapsed.Seconds()
		if avgBytesPerSec > 0 {
			remainingBytes := total - current
			etaSeconds := int(float64(remainingBytes) / avgBytesPerSec)
			etaStr = (time.Duration(etaSeconds) * time.Second).String()
		}
	}

	// [====>   ] style bar
	const barWidth = 20
	completedWidth := int(percent / 100 * barWidth)
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	speedLabel := "Speed"
	timeLabel := "ETA"
	if final {
		speedLabel = "Avg"
		timeLabel = "Time"
		etaStr = elapsed.Truncate(time.Second).String()
	}

	fmt.Printf("\r[%s] %5.1f%% | %s: %6.2f Mbps | %s: %-7s | %d/%d MB      ",
		bar, percent, speedLabel, displaySpeed, timeLabel, etaStr, current/1024/1024, total/1024/1024)
}
