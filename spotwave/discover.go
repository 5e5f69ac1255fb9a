package spotwave

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Discover lists the serial port names of all attached spotWave devices,
// identified by their USB vendor and product id. The returned names are
// sorted.
func Discover() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("spotwave: list serial ports: %w", err)
	}

	var names []string
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		if !matchesHexID(port.VID, VendorID) || !matchesHexID(port.PID, ProductID) {
			continue
		}
		names = append(names, port.Name)
	}
	sort.Strings(names)

	return names, nil
}

// matchesHexID compares a hex id string as reported by the enumerator
// against a numeric id.
func matchesHexID(s string, id int64) bool {
	val, err := strconv.ParseInt(strings.TrimSpace(s), 16, 32)
	return err == nil && val == id
}
