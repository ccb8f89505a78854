package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash"

	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/emu"
	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/memmap"
	"github.com/FabianRolfMatthiasNoll/GameBoyCore/internal/ui"
)

type CLIFlags struct {
	ROMPath string
	Scale   int
	Title   string
	Trace   bool
	Paused  bool
	State   string // save state slot for F5/F9
	Info    bool   // print the cartridge header and exit

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected state digest hex (e.g., "1a2b3c4d5e6f7081")
}

func parseFlags() CLIFlags {
	var f CLIFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb, .gbc, .gz, .zip, .7z)")
	flag.IntVar(&f.Scale, "scale", 2, "window scale")
	flag.StringVar(&f.Title, "title", "gbemu", "window title")
	flag.BoolVar(&f.Trace, "trace", false, "CPU trace log")
	flag.BoolVar(&f.Paused, "paused", false, "start the window paused")
	flag.StringVar(&f.State, "state", "", "save state file (default: ROM name + .savestate)")
	flag.BoolVar(&f.Info, "info", false, "print the cartridge header and exit")

	// headless options
	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write the final memory map to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert the final state digest (hex)")
	flag.Parse()
	return f
}

func printInfo(path string, rom []byte) error {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return err
	}
	fmt.Printf("File:          %s\n", path)
	fmt.Printf("Title:         %s\n", h.Title)
	if h.ManufacturerCode != "" {
		fmt.Printf("Manufacturer:  %s\n", h.ManufacturerCode)
	}
	fmt.Printf("CGB:           %v (flag %02X)\n", h.IsCGB(), h.CGBFlag)
	fmt.Printf("Type:          %s (%02X)\n", h.CartTypeStr, h.CartType)
	fmt.Printf("ROM:           %d bytes, %d banks\n", h.ROMSizeBytes, h.ROMBanks)
	fmt.Printf("RAM:           %d bytes\n", h.RAMSizeBytes)
	fmt.Printf("Logo OK:       %v\n", h.LogoOK)
	fmt.Printf("Checksum OK:   %v\n", cart.HeaderChecksumOK(rom))
	fmt.Printf("xxhash:        %016x\n", xxhash.Sum64(rom))
	return nil
}

func runHeadless(m *emu.Machine, frames int, pngPath, expect string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	var runErr error
	for i := 0; i < frames; i++ {
		if runErr = m.StepFrame(); runErr != nil {
			break
		}
	}
	dur := time.Since(start)
	digest := m.Digest()

	log.Printf("headless: frames=%d steps=%d cycles=%d elapsed=%s digest=%016x",
		frames, m.Steps(), m.Cycles(), dur.Truncate(time.Millisecond), digest)

	if pngPath != "" {
		if err := saveMapPNG(m, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}
	if runErr != nil {
		return runErr
	}

	if expect != "" {
		// allow with/without 0x, upper/lowercase
		want := strings.TrimPrefix(strings.ToLower(expect), "0x")
		got := fmt.Sprintf("%016x", digest)
		if got != want {
			return fmt.Errorf("digest mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveMapPNG(m *emu.Machine, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, memmap.Width, memmap.Height))
	c := m.CPU()
	memmap.Render(img.Pix, m.Bus().Snapshot(), c.PC, c.SP)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func main() {
	f := parseFlags()
	if f.ROMPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := cart.LoadFile(f.ROMPath)
	if err != nil {
		log.Fatalf("read %s: %v", f.ROMPath, err)
	}

	if f.Info {
		if err := printInfo(f.ROMPath, rom); err != nil {
			log.Fatal(err)
		}
		return
	}

	m := emu.New(emu.Config{Trace: f.Trace})
	defer m.Close()
	if err := m.LoadROM(rom); err != nil {
		log.Fatalf("load rom: %v", err)
	}
	if h := m.Header(); h != nil {
		log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
	}

	if f.Headless {
		if err := runHeadless(m, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Fatal(err)
		}
		return
	}

	state := f.State
	if state == "" {
		// keep the state next to the ROM
		if abs, err := filepath.Abs(f.ROMPath); err == nil {
			state = strings.TrimSuffix(abs, filepath.Ext(abs)) + ".savestate"
		}
	}
	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale, StateFile: state, Paused: f.Paused}, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
