package wave

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a firmware version as a sequence of integer parts, compared
// element-wise.
type Version []int

// ParseVersion parses a dot-separated firmware version string. Each part is
// parsed in the given base: the conditionWave reports decimal parts ("2.13"),
// the spotWave hexadecimal parts ("00.2a").
func ParseVersion(s string, base int) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	v := make(Version, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(part, base, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid firmware version %q", ErrProtocol, s)
		}
		v = append(v, int(n))
	}

	return v, nil
}

// Compare returns -1, 0 or 1 if v is older than, equal to, or newer than
// other. Missing parts compare as zero, so "2.2" equals "2.2.0".
func (v Version) Compare(other Version) int {
	n := len(v)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}

	return 0
}

// CheckFirmware verifies that the device firmware version got is at least
// min, both parsed with the given base. It returns an error wrapping
// ErrFirmwareTooOld if the firmware is older; firmware gating is fatal at
// connect time.
func CheckFirmware(got, min string, base int) error {
	gotVer, err := ParseVersion(got, base)
	if err != nil {
		return err
	}
	minVer, err := ParseVersion(min, base)
	if err != nil {
		return err
	}

	if gotVer.Compare(minVer) < 0 {
		return fmt.Errorf("%w: firmware version %s < %s", ErrFirmwareTooOld, got, min)
	}

	return nil
}
