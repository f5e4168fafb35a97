// Command midimon lists MIDI input ports and prints their events as the
// synth would interpret them.
//
//	midimon list
//	midimon monitor [-port NAME]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chase3718/monosynth/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "list":
		runList()
	case "monitor":
		runMonitor(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: midimon <list|monitor> [-port NAME]")
}

func runList() {
	names, err := midi.ListInputs()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if len(names) == 0 {
		fmt.Println("no MIDI inputs")
		return
	}
	for i, n := range names {
		fmt.Printf("%d: %s\n", i, n)
	}
}

func runMonitor(args []string) {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	portName := fs.String("port", "", "input port (exact name; default: first hardware port)")
	_ = fs.Parse(args)

	port, err := midi.OpenPort(*portName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer port.Close()

	fmt.Printf("monitoring %s (ctrl-c to stop)\n", port.Name())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			fmt.Println()
			return
		default:
		}
		msg, ok := port.Read()
		if !ok {
			if err := port.Err(); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			time.Sleep(midi.POLL_INTERVAL)
			continue
		}
		e := midi.Normalize(msg)
		if e.Type == midi.UNHANDLED {
			fmt.Printf("unhandled %s\n", msg.String())
			continue
		}
		printEvent(e)
	}
}

func printEvent(e midi.Event) {
	switch e.Type {
	case midi.NOTE_ON:
		fmt.Printf("note on   %-4s vel %.3f\n", midi.NoteName(e.Note), e.Velocity)
	case midi.NOTE_OFF:
		fmt.Printf("note off  %-4s\n", midi.NoteName(e.Note))
	case midi.PITCHBEND:
		fmt.Printf("bend      %+.3f\n", e.Pitch)
	case midi.CONTROL:
		fmt.Printf("control   %d = %.3f\n", e.Note, e.Control)
	}
}
