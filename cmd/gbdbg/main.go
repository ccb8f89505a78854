package main

import (
	"flag"
	"log"

	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/debugger"
	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/emu"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb, .gbc, .gz, .zip, .7z)")
	history := flag.Int("history", 64, "executed instructions kept for the history view")
	maxContinue := flag.Int("max", 1_000_000, "max steps per continue")
	noPostBoot := flag.Bool("nopostboot", false, "start from zeroed registers")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	m := emu.New(emu.Config{NoPostBoot: *noPostBoot})
	defer m.Close()
	if err := m.LoadROMFromFile(*romPath); err != nil {
		log.Fatalf("load rom: %v", err)
	}

	d := debugger.New(m, *history)
	d.MaxContinue = *maxContinue
	if err := debugger.Run(d); err != nil {
		log.Fatal(err)
	}
}
