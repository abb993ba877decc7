package transmission

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	freeSpaceMinVersion = semver.MustParse("2.80.0")
	startNowMinVersion  = semver.MustParse("2.0.0")
)

// Capabilities lists version-gated RPC features.
type Capabilities struct {
	Version   *semver.Version
	FreeSpace bool
	StartNow  bool
}

// ParseVersion extracts the semantic version from a daemon version string
// such as "4.0.6 (38c164933e)".
func ParseVersion(raw string) (*semver.Version, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty daemon version")
	}
	v, err := semver.NewVersion(fields[0])
	if err != nil {
		return nil, fmt.Errorf("parse daemon version %q: %w", raw, err)
	}
	return v, nil
}

// CapabilitiesFor derives feature support from a version string. Unparseable
// versions are assumed to be current daemons.
func CapabilitiesFor(raw string) Capabilities {
	v, err := ParseVersion(raw)
	if err != nil {
		return Capabilities{FreeSpace: true, StartNow: true}
	}
	return Capabilities{
		Version:   v,
		FreeSpace: !v.LessThan(freeSpaceMinVersion),
		StartNow:  !v.LessThan(startNowMinVersion),
	}
}

// Capabilities returns what the client learned from the last SessionGet.
func (c *Client) Capabilities() Capabilities {
	if caps := c.version.Load(); caps != nil {
		return *caps
	}
	return Capabilities{FreeSpace: true, StartNow: true}
}
