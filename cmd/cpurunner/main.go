package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/emu"
	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/statsview"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb, .gbc, .gz, .zip, .7z)")
	steps := flag.Int("steps", 5_000_000, "max CPU steps to run")
	startPC := flag.String("pc", "0100", "initial PC value (hex)")
	noPostBoot := flag.Bool("nopostboot", false, "start from zeroed registers instead of DMG post-boot values")
	trace := flag.Bool("trace", false, "log every executed instruction")
	traceFile := flag.String("tracefile", "", "write the trace to this file instead of stdout")
	untilPC := flag.String("untilpc", "", "stop when PC reaches this address (hex); empty to disable")
	stopOnLoop := flag.Bool("stopOnLoop", true, "stop when an instruction jumps to itself")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s, 2m); 0 disables")
	traceOnFail := flag.Bool("traceOnFail", false, "on a fatal error, print a recent trace window (slows down)")
	traceWindow := flag.Int("traceWindow", 200, "number of recent instructions to include in 'traceOnFail' dump")
	digest := flag.Bool("digest", false, "print an xxhash digest of CPU state and memory when done")
	stats := flag.Bool("statsview", false, "serve runtime statistics while running")
	statsAddr := flag.String("statsaddr", statsview.DefaultAddress, "address for -statsview")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	pc, err := parseAddr(*startPC)
	if err != nil {
		log.Fatalf("-pc: %v", err)
	}
	var stopAt uint16
	haveStop := *untilPC != ""
	if haveStop {
		if stopAt, err = parseAddr(*untilPC); err != nil {
			log.Fatalf("-untilpc: %v", err)
		}
	}

	if *stats {
		stop, err := statsview.Launch(*statsAddr, os.Stdout)
		if err != nil {
			log.Printf("statsview disabled: %v", err)
		} else {
			defer stop()
		}
	}

	m := emu.New(emu.Config{
		Trace:      *trace,
		TraceFile:  *traceFile,
		NoPostBoot: *noPostBoot,
		StartPC:    &pc,
	})
	defer m.Close()
	if err := m.LoadROMFromFile(*romPath); err != nil {
		log.Fatalf("load rom: %v", err)
	}
	if h := m.Header(); h != nil {
		log.Printf("ROM: %q type=%s banks=%d xxhash=%016x", h.Title, h.CartTypeStr, h.ROMBanks, m.ROMHash())
	} else {
		log.Printf("ROM: no header, %s xxhash=%016x", *romPath, m.ROMHash())
	}

	var ring *emu.Ring
	if *traceOnFail {
		ring = emu.NewRing(*traceWindow)
		m.SetTraceHook(ring.Add)
	}

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}
	done := func(reason string) {
		fmt.Printf("\n%s\nDone: steps=%d cycles=%d elapsed=%s\n", reason, m.Steps(), m.Cycles(), time.Since(start).Truncate(time.Millisecond))
		if *digest {
			fmt.Printf("digest=%016x\n", m.Digest())
		}
	}

	for i := 0; i < *steps; i++ {
		before := m.CPU().PC
		if _, err := m.Step(); err != nil {
			if ring != nil && ring.Len() > 0 {
				fmt.Printf("\n--- recent trace (last %d instructions) ---\n", ring.Len())
				for _, te := range ring.Entries() {
					fmt.Println(te)
				}
				fmt.Printf("--- end trace ---\n")
			}
			done("Fatal error.")
			var uerr *cpu.UnknownOpcodeError
			if errors.As(err, &uerr) {
				log.Fatalf("unknown opcode %s at %04X", uerr.Code(), uerr.Address)
			}
			log.Fatal(err)
		}
		c := m.CPU()
		if haveStop && c.PC == stopAt {
			done(fmt.Sprintf("Reached PC=%04X.", stopAt))
			return
		}
		if *stopOnLoop && c.PC == before && !c.Halted && !c.Stopped {
			done(fmt.Sprintf("Instruction at %04X jumps to itself.", before))
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			done(fmt.Sprintf("Timeout after %s.", time.Since(start).Truncate(time.Millisecond)))
			os.Exit(2)
		}
	}
	done("Step limit reached.")
}

func parseAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(trimHex(s), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func trimHex(s string) string {
	for _, p := range []string{"0x", "0X", "$"} {
		if len(s) > len(p) && s[:len(p)] == p {
			return s[len(p):]
		}
	}
	return s
}
