package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"go-pulse/click"
	"go-pulse/config"
	"go-pulse/metrics"
	"go-pulse/midi"
	"go-pulse/scheduler"
	"go-pulse/timing"
	"go-pulse/tui"
)

var (
	flagConfig   string
	flagSequence string
	flagPort     string
	flagTempo    float64
	flagNoTUI    bool
	flagNoClick  bool
	flagSilent   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Play a sequence",
	Long: `Loads a YAML sequence and plays it through a MIDI output port. With
no sequence file a built-in demo pattern plays. Without --no-tui an
interactive transport view takes over the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagPort != "" {
			cfg.PortName = flagPort
		}
		if flagTempo > 0 {
			cfg.Timing.Tempo = flagTempo
		}
		return run(cfg)
	},
}

func init() {
	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "config file (default ~/.config/go-pulse/config.yaml)")
	runCmd.Flags().StringVarP(&flagSequence, "sequence", "s", "", "YAML sequence file (default: built-in demo)")
	runCmd.Flags().StringVarP(&flagPort, "port", "p", "", "MIDI output port name (default: first available)")
	runCmd.Flags().Float64VarP(&flagTempo, "tempo", "t", 0, "override the configured tempo")
	runCmd.Flags().BoolVar(&flagNoTUI, "no-tui", false, "play headless until interrupted")
	runCmd.Flags().BoolVar(&flagNoClick, "no-click", false, "disable the metronome")
	runCmd.Flags().BoolVar(&flagSilent, "silent", false, "run without a MIDI port (timing and metrics only)")
	rootCmd.AddCommand(runCmd)
}

func run(cfg *config.Config) error {
	tctx, err := timing.NewContext(cfg.Timing.SampleRate, cfg.Timing.Tempo,
		timing.TimeSignature{BeatsPerBar: cfg.Timing.BeatsPerBar, BeatUnit: cfg.Timing.BeatUnit})
	if err != nil {
		return err
	}

	tracks := demoTracks()
	if flagSequence != "" {
		tracks, err = scheduler.LoadTracks(flagSequence)
		if err != nil {
			return err
		}
	}

	clock := timing.NewHostClock(tctx.SampleRate)

	var queue midi.Queue = midi.NullQueue{}
	var portQueue *midi.PortQueue
	if !flagSilent {
		sender, portName, err := midi.OpenSender(cfg.PortName)
		if errors.Is(err, midi.ErrNoPort) {
			fmt.Println("no MIDI output port - running silent")
		} else if err != nil {
			return err
		} else {
			fmt.Printf("output: %s\n", portName)
			portQueue = midi.NewPortQueue(sender, clock, cfg.Scheduler.QueueCapacity)
			queue = portQueue
			go portQueue.Run()
			defer portQueue.Close()
		}
	}

	var mets *metrics.Collector
	if cfg.MetricsPort > 0 {
		mets = metrics.NewCollector(nil)
		go func() {
			if err := metrics.StartServer(cfg.MetricsPort); err != nil {
				fmt.Printf("metrics server: %v\n", err)
			}
		}()
	}

	sched := scheduler.New(queue, clock, tctx, tracks, scheduler.Options{
		HorizonBeats: cfg.Scheduler.HorizonBeats,
		MaxLookahead: time.Duration(cfg.Scheduler.MaxLookaheadMs) * time.Millisecond,
		TickInterval: time.Duration(cfg.Scheduler.TickIntervalMs) * time.Millisecond,
		Metrics:      mets,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go sched.Run(ctx)

	if cfg.Click.Enabled && !flagNoClick {
		gen := click.New(queue, clock, sched, click.Options{
			Channel:  cfg.Click.Channel,
			Key:      cfg.Click.Key,
			Accent:   cfg.Click.Accent,
			Velocity: cfg.Click.Velocity,
		})
		go gen.Run(ctx)
	}

	sched.OnTransportStart(0)

	if flagNoTUI {
		return runHeadless(ctx, sched, tracks)
	}
	err = tui.Run(sched)
	sched.OnTransportStop()
	return err
}

// runHeadless plays until the sequence ends or the context is cancelled.
func runHeadless(ctx context.Context, sched *scheduler.Scheduler, tracks []*scheduler.Track) error {
	end := 0.0
	for _, tr := range tracks {
		if e := tr.EndBeat(); e > end {
			end = e
		}
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sched.OnTransportStop()
			return nil
		case <-ticker.C:
			if sched.CurrentBeat() > end {
				sched.OnTransportStop()
				return nil
			}
		}
	}
}
