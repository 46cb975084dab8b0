package platform

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Battery reads the charge percentage from a sysfs power supply.
// Implements app.PowerSource.
type Battery struct {
	capacityPath string
}

// NewBattery points at /sys/class/power_supply/<name>. A missing
// supply is not an error; readings just come back unknown.
func NewBattery(name string) *Battery {
	return &Battery{
		capacityPath: filepath.Join("/sys/class/power_supply", name, "capacity"),
	}
}

func (b *Battery) BatteryPercent() (int, bool) {
	data, err := os.ReadFile(b.capacityPath)
	if err != nil {
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}
