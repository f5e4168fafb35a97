package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chase3718/monosynth/audio"
	"github.com/chase3718/monosynth/midi"
	"github.com/chase3718/monosynth/synth"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the library packages also route through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Main --------------------

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	list := flag.Bool("list", false, "list MIDI input ports and exit")
	midiName := flag.String("midi", "", "MIDI input port (exact name; default: first hardware port)")
	waveName := flag.String("wave", "saw", "waveform: sine, saw, square or triangle")
	rate := flag.Int("rate", audio.SAMPLE_RATE, "sample rate in Hz (exact match required)")
	gain := flag.Float64("gain", audio.DEFAULT_GAIN, "output gain in [0, 1]")
	naive := flag.Bool("naive", false, "disable bandlimiting (aliased waveforms, for comparison)")
	record := flag.String("record", "", "tee rendered audio into a WAV file")
	flag.Parse()

	initLogger(*debug)

	if *list {
		names, err := midi.ListInputs()
		if err != nil {
			logger.Error("failed to list MIDI inputs", "err", err)
			os.Exit(1)
		}
		if len(names) == 0 {
			fmt.Println("no MIDI inputs")
			return
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	wave, err := synth.ParseWave(*waveName)
	if err != nil {
		logger.Error("bad -wave value", "err", err)
		os.Exit(1)
	}

	logger.Info("monosynth starting",
		"wave", wave,
		"rate", *rate,
		"gain", *gain,
		"naive", *naive,
		"debug", *debug,
	)

	cfg := audio.DefaultConfig()
	cfg.Rate = *rate
	dev, err := audio.Open(cfg)
	if err != nil {
		logger.Error("audio device init failed", "err", err)
		os.Exit(1)
	}
	defer dev.Close()

	port, err := midi.OpenPort(*midiName)
	if err != nil {
		logger.Error("midi input init failed", "err", err)
		os.Exit(1)
	}
	ctrl := midi.NewController(port)
	defer ctrl.Close()

	osc := synth.NewOscillator(dev.Rate())
	osc.SetMode(wave)
	osc.SetNaive(*naive)

	engine := audio.NewEngine(dev, ctrl, osc)
	engine.Gain = *gain

	if *record != "" {
		rec, err := audio.NewRecorder(*record, dev.Rate(), dev.Channels())
		if err != nil {
			logger.Error("recorder init failed", "err", err)
			os.Exit(1)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Error("recorder close failed", "err", err)
			}
		}()
		engine.AttachRecorder(rec)
		logger.Info("recording", "path", *record)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("running", "midi_port", port.Name())
	if err := engine.Run(ctx); err != nil {
		logger.Error("engine failed", "err", err)
		os.Exit(1)
	}
	logger.Info("monosynth stopped", "underruns", dev.Underruns())
}
