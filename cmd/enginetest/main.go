package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"grain-surface/config"
	"grain-surface/midi"
	"grain-surface/protocol"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	port := flag.String("port", cfg.Engine.PortName, "engine port name fragment")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		return
	}

	switch args[0] {
	case "list":
		listPorts()
	case "channels":
		listChannels()
	case "push":
		if len(args) < 3 {
			usage()
			os.Exit(2)
		}
		pushChannel(*port, args[1], args[2:])
	case "watch":
		watchFrames(*port)
	case "poll":
		pollDevices(*port)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("Engine Test Scripts")
	fmt.Println("")
	fmt.Println("Usage: enginetest [-port name] <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                  - List all MIDI ports")
	fmt.Println("  channels              - Show the channel table")
	fmt.Println("  push <ch> <values...> - Send one channel frame (number or name)")
	fmt.Println("  watch                 - Dump frames the engine publishes")
	fmt.Println("  poll                  - Poll for the engine port coming and going")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ins, outs, ok := midi.ListPorts(3 * time.Second)
	if !ok {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
}

func listChannels() {
	for _, b := range protocol.Bindings() {
		size := strconv.Itoa(b.Count)
		if b.Count == 0 {
			size = fmt.Sprintf("<=%d", b.Capacity)
		}
		fmt.Printf("  %2d  %-16s %-15s %-5s %s\n", int(b.Channel), b.Name, b.Direction, b.Type, size)
	}
}

// attach connects to the engine port or exits
func attach(port string) *midi.Engine {
	if port == "" {
		fmt.Println("No engine port configured; pass -port")
		os.Exit(1)
	}
	ins, outs, ok := midi.ListPorts(3 * time.Second)
	if !ok {
		fmt.Println("TIMEOUT listing ports")
		os.Exit(1)
	}
	in, out := midi.FindPair(ins, outs, port)
	if in == nil || out == nil {
		fmt.Printf("Engine port %q not found\n", port)
		os.Exit(1)
	}

	engine := midi.NewEngine()
	if err := engine.Attach(in.String(), in, out); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Using engine: %s\n", in.String())
	return engine
}

func pushChannel(port, name string, args []string) {
	b, err := parseChannel(name)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}
	p, err := parseValues(b, args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}

	engine := attach(port)
	defer engine.Close()

	if err := engine.Push(b.Channel, p); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sent %s %v\n", b.Channel, p.Values)
}

func watchFrames(port string) {
	engine := attach(port)
	defer engine.Close()

	fmt.Println("Watching engine frames. Ctrl+C to exit.")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case f := <-engine.Frames():
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05.000"), f.Channel, summarize(f.Payload))
		case <-stop:
			return
		}
	}
}

func pollDevices(port string) {
	fmt.Println("Polling for device changes every 2 seconds...")
	fmt.Printf("Connect/disconnect the engine (%q) to test. Ctrl+C to exit.\n", port)

	lastIn := ""
	lastOut := ""

	for {
		ins, outs, ok := midi.ListPorts(3 * time.Second)
		if !ok {
			fmt.Println("TIMEOUT listing ports")
			time.Sleep(2 * time.Second)
			continue
		}

		var inNames, outNames []string
		for _, p := range ins {
			inNames = append(inNames, p.String())
		}
		for _, p := range outs {
			outNames = append(outNames, p.String())
		}

		currentIn := strings.Join(inNames, ",")
		currentOut := strings.Join(outNames, ",")

		if currentIn != lastIn || currentOut != lastOut {
			fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  Inputs: %v\n", inNames)
			fmt.Printf("  Outputs: %v\n", outNames)

			if in, out := midi.FindPair(ins, outs, port); in != nil && out != nil {
				fmt.Println("  -> Engine detected!")
			}

			lastIn = currentIn
			lastOut = currentOut
		}

		time.Sleep(2 * time.Second)
	}
}

// parseChannel accepts a channel number or its table name
func parseChannel(s string) (protocol.Binding, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return protocol.Lookup(protocol.Channel(n))
	}
	for _, b := range protocol.Bindings() {
		if b.Name == s {
			return b, nil
		}
	}
	return protocol.Binding{}, fmt.Errorf("%w: %s", protocol.ErrUnknownChannel, s)
}

func parseValues(b protocol.Binding, args []string) (protocol.Payload, error) {
	if b.Type == protocol.TypeInt {
		vals := make([]int, len(args))
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return protocol.Payload{}, fmt.Errorf("value %q: %w", a, err)
			}
			vals[i] = v
		}
		return protocol.Ints(vals...), b.Check(protocol.Ints(vals...))
	}
	vals := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return protocol.Payload{}, fmt.Errorf("value %q: %w", a, err)
		}
		vals[i] = v
	}
	return protocol.Floats(vals...), b.Check(protocol.Floats(vals...))
}

// summarize keeps window dumps readable
func summarize(p protocol.Payload) string {
	if len(p.Values) <= 8 {
		return fmt.Sprintf("%v", p.Values)
	}
	return fmt.Sprintf("%d values %v ...", len(p.Values), p.Values[:8])
}
