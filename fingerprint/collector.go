package fingerprint

import (
	"bufio"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// hostCollector gathers signals from the local machine. Every signal is
// best effort: a missing file or interface leaves its field empty and only
// lowers the confidence score.
type hostCollector struct{}

// Machine identity files in order of preference. The DMI product UUID
// usually needs root, so the machine-id files come first.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

var productUUIDPaths = []string{
	"/sys/class/dmi/id/product_uuid",
	"/sys/devices/virtual/dmi/id/product_uuid",
}

func (hostCollector) Collect() (Signals, error) {
	s := Signals{
		MachineID:   readFirstLine(machineIDPaths),
		ProductUUID: readFirstLine(productUUIDPaths),
		MACAddress:  primaryMAC(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		OSVersion:   kernelVersion(),
		CPUCount:    runtime.NumCPU(),
		MemoryHint:  totalMemoryHint(),
		Timezone:    time.Now().Location().String(),
		Locale:      locale(),
	}

	if hostname, err := os.Hostname(); err == nil {
		s.Hostname = hostname
	}

	return s, nil
}

func readFirstLine(paths []string) string {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if line := strings.TrimSpace(string(data)); line != "" {
			return line
		}
	}
	return ""
}

// primaryMAC returns the hardware address of the first non-loopback
// interface that has one. Interface ordering is stable enough on a given
// host; a changed NIC legitimately changes the device identity.
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addr := iface.HardwareAddr.String(); addr != "" {
			return addr
		}
	}
	return ""
}

func kernelVersion() string {
	return readFirstLine([]string{"/proc/sys/kernel/osrelease", "/proc/version"})
}

// totalMemoryHint returns total memory rounded down to the nearest GiB so
// minor kernel-reported differences do not destabilize the fingerprint.
func totalMemoryHint() uint64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb / (1024 * 1024) // GiB
	}
	return 0
}

func locale() string {
	for _, env := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}
