package serialbus

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB vendor IDs of the serial adapters Dynamixel controllers ship with.
var knownVendors = map[string]bool{
	"0403": true, // FTDI
	"10C4": true, // Silicon Labs
	"067B": true, // Prolific
}

// FindPort returns the most likely port for a Dynamixel controller: first
// a USB serial adapter with a known vendor ID, then any USB serial port.
func FindPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB && knownVendors[strings.ToUpper(p.VID)] {
			return p.Name, nil
		}
	}
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no USB serial port found")
}

// ListPorts returns the names of all USB serial ports, known vendors
// first.
func ListPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	var known, other []string
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if knownVendors[strings.ToUpper(p.VID)] {
			known = append(known, p.Name)
		} else {
			other = append(other, p.Name)
		}
	}
	return append(known, other...), nil
}
