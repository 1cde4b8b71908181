package platform

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	cpuinfoPath   = "/proc/cpuinfo"
	osReleasePath = "/etc/os-release"
)

// Info describes the machine a benchmark ran on.
type Info struct {
	CPU          string  `json:"cpu"`
	Arch         string  `json:"arch"`
	System       string  `json:"system"`
	Distribution *string `json:"distribution"`
}

func Collect() Info {
	sys := uname()
	info := Info{
		CPU:    sys.machine,
		Arch:   sys.machine,
		System: strings.TrimSpace(sys.name + " " + sys.release),
	}

	if f, err := os.Open(cpuinfoPath); err == nil {
		if model := modelName(f); model != "" {
			info.CPU = model
		}
		_ = f.Close()
	}

	if sys.name == "Linux" {
		if dist := distribution(osReleasePath); dist != "" {
			info.Distribution = &dist
		}
	}
	return info
}

func modelName(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "model name") {
			continue
		}
		_, value, ok := strings.Cut(line, ":")
		if ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func distribution(path string) string {
	release, err := godotenv.Read(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(release["NAME"] + " " + release["VERSION_ID"])
}
