package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"grain-surface/config"
	"grain-surface/debug"
	"grain-surface/loopback"
	"grain-surface/midi"
	"grain-surface/params"
	"grain-surface/surface"
	"grain-surface/theme"
	"grain-surface/transport"
	"grain-surface/tui"
)

// loopbackStep is how often the built-in engine services its channels
const loopbackStep = 5 * time.Millisecond

func main() {
	debugFlag := flag.Bool("debug", false, "write a debug log")
	loopbackFlag := flag.Bool("loopback", false, "run against the built-in loopback engine")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config: %v\n", err)
		os.Exit(1)
	}
	if *loopbackFlag {
		cfg.Engine.Transport = config.TransportLoopback
	}
	if cfg.Debug || *debugFlag {
		if err := debug.Enable(cfg.LogPath); err != nil {
			fmt.Printf("Debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	// Load theme
	th := theme.New(loadPalette(cfg.UI.Palette))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tr transport.Transport
	var engine *midi.Engine
	switch cfg.Engine.Transport {
	case config.TransportMIDI:
		engine = midi.NewEngine()
		defer engine.Close()
		tr = engine
	default:
		link, err := startLoopback(ctx, cfg)
		if err != nil {
			fmt.Printf("Loopback engine: %v\n", err)
			os.Exit(1)
		}
		tr = link
	}

	s, err := surface.New(tr, surface.Options{
		FPS:           cfg.Refresh.FPS,
		Stabilization: cfg.Stabilization(),
		Content:       cfg.ContentNames(),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	mappings, err := controllerMappings(cfg.Controller.Mappings, s.Values())
	if err != nil {
		fmt.Printf("Controller mappings: %v\n", err)
	}

	// MIDI device manager (handles hot-plug of the engine and knob boxes)
	var deviceMgr *midi.DeviceManager
	if engine != nil || cfg.Controller.AutoConnect {
		deviceMgr = midi.NewDeviceManager(engine, midi.Ports{
			Engine:      cfg.Engine.PortName,
			Controller:  cfg.Controller.PortName,
			AutoConnect: cfg.Controller.AutoConnect,
		})
		go deviceMgr.Run(ctx)
	}

	if cfg.UI.LastContent > 0 {
		s.SwitchContent(cfg.UI.LastContent)
	}
	go s.Run(ctx)

	fmt.Println("grain-surface")
	if engine != nil {
		fmt.Printf("Waiting for engine port %q - it will be picked up automatically\n", cfg.Engine.PortName)
	}
	fmt.Println("")

	m := tui.NewModel(s, deviceMgr, th, midi.NewMapper(mappings), float64(cfg.Engine.SampleRate))
	p := tea.NewProgram(m, tea.WithAltScreen())

	final, err := p.Run()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if fm, ok := final.(tui.Model); ok && fm.Content() != cfg.UI.LastContent {
		cfg.UI.LastContent = fm.Content()
		if err := cfg.Save(); err != nil {
			fmt.Printf("Save config: %v\n", err)
		}
	}
}

// loadPalette resolves the configured palette from the config dir, then
// the shipped palettes, falling back to the built-in one
func loadPalette(name string) *theme.Palette {
	var dirs []string
	if dir, err := config.ConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "palettes"))
	}
	dirs = append(dirs, "palettes")

	palette, err := theme.Resolve(name, dirs...)
	if err != nil {
		fmt.Printf("Palette: %v (using default)\n", err)
		return theme.Default()
	}
	return palette
}

// startLoopback runs the built-in engine on an in-process link
func startLoopback(ctx context.Context, cfg *config.Config) (*transport.Link, error) {
	items, err := cfg.ContentPaths()
	if err != nil {
		return nil, err
	}
	content := make([]loopback.Content, len(items))
	for i, item := range items {
		content[i] = loopback.Content{Name: item.Name, Frames: item.Frames}
		if item.Path == "" {
			continue
		}
		c, err := loopback.LoadContent(item.Path, cfg.Engine.SampleRate)
		if err != nil {
			fmt.Printf("Content %q: %v (using %d frames)\n", item.Name, err, item.Frames)
			continue
		}
		c.Name = item.Name
		content[i] = c
	}

	link := transport.NewLink()
	engine := loopback.New(link, content, loopback.Options{SampleRate: cfg.Engine.SampleRate})
	go engine.Run(ctx, loopbackStep)
	return link, nil
}

// controllerMappings converts configured CC bindings, dropping any that
// name a field the surface does not have
func controllerMappings(cfgs []config.MappingConfig, fields map[string]float64) ([]midi.Mapping, error) {
	var out []midi.Mapping
	var unknown []string
	for _, mc := range cfgs {
		if _, ok := fields[mc.Param]; !ok {
			unknown = append(unknown, mc.Param)
			continue
		}
		out = append(out, midi.Mapping{
			CC:      uint8(mc.CC),
			Channel: mc.Channel - 1, // 0 (any) becomes -1
			Param:   mc.Param,
		})
	}
	if len(unknown) > 0 {
		return out, fmt.Errorf("%w: %v", params.ErrUnknown, unknown)
	}
	return out, nil
}
