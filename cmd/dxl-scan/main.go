// Command dxl-scan finds the servo bus, discovers every servo on it and
// writes the port settings to dxl.json for use by dxl-monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/edaniels/golog"

	"github.com/gwillem/dynamixel/pkg/dxl"
	"github.com/gwillem/dynamixel/pkg/serialbus"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func main() {
	var (
		port     = flag.String("port", "", "Serial port (auto-detected when empty)")
		baudrate = flag.Int("baud", dxl.DefaultBaudrate, "Bus baudrate")
		scanEnd  = flag.Int("scan-end", 30, "Highest servo ID to probe")
		blink    = flag.Bool("blink", true, "Blink each servo's LED while listing it")
	)
	flag.Parse()

	fmt.Println(titleStyle.Render("Dynamixel Bus Scanner"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	p, err := pickPort(*port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := golog.NewDevelopmentLogger("dxl-scan")
	bus, err := serialbus.Open(serialbus.Config{Port: p, Baudrate: *baudrate}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", p, err)
		os.Exit(1)
	}

	cfg := dxl.Config{Port: p, Baudrate: *baudrate, ScanEnd: *scanEnd}
	ctrl := dxl.NewController(bus, cfg, logger)
	defer ctrl.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Scanning %s (IDs 0-%d)...\n\n", p, *scanEnd)
	if err := ctrl.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ids := ctrl.IDs()
	if len(ids) == 0 {
		fmt.Println(warnStyle.Render("No servos found."))
		fmt.Println("Check power, wiring and baudrate, then run again.")
		os.Exit(1)
	}

	for _, id := range ids {
		s, _ := ctrl.GetServo(id)
		printServo(ctx, s, *blink)
	}

	fmt.Println()
	fmt.Printf("%s %d servo(s) on %s\n", okStyle.Render("✓"), len(ids), p)

	if askSaveConfig() {
		if err := cfg.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Configuration saved to %s\n", okStyle.Render("✓"), dxl.DefaultConfigFile)
		fmt.Println()
		fmt.Println("Watch live positions with:")
		fmt.Println("  go run ./cmd/dxl-monitor")
	}
}

// pickPort resolves the bus port: explicit flag, auto-detection, or an
// interactive choice when several candidates exist.
func pickPort(flagPort string) (string, error) {
	if flagPort != "" {
		return flagPort, nil
	}
	if p, err := serialbus.FindPort(); err == nil {
		fmt.Printf("Auto-detected %s\n\n", p)
		return p, nil
	}
	ports, err := serialbus.ListPorts()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}
	if len(ports) == 1 {
		return ports[0], nil
	}

	var choice string
	opts := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		opts = append(opts, huh.NewOption(p, p))
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Which port is the servo bus on?").
			Options(opts...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}

func printServo(ctx context.Context, s *dxl.Servo, blink bool) {
	if blink {
		// A short flash ties the listed ID to a physical device.
		s.SetLED(ctx, true)
		defer func() {
			time.Sleep(200 * time.Millisecond)
			s.SetLED(ctx, false)
		}()
	}

	info := s.Info()
	fmt.Printf("  ID %-3d %s (model %d)\n", s.ID(), titleStyle.Render(info.Name), info.Number)
	fmt.Printf("         %s\n", dimStyle.Render(strings.Join(info.Features, ", ")))

	if pos, err := s.GetPosition(ctx); err == nil {
		fmt.Printf("         position: %.1f°\n", pos)
	}
	if faults, err := s.HardwareErrors(ctx); err == nil && len(faults) > 0 {
		fmt.Printf("         %s\n", warnStyle.Render("fault: "+strings.Join(faults, ", ")))
	}
}

func askSaveConfig() bool {
	save := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Save these settings to %s?", dxl.DefaultConfigFile)).
			Value(&save),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return save
}
