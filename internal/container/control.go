package container

import (
	"context"
	"fmt"
	"maps"
	"net"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
)

const (
	NamePrefix = "aiopg-benchmark-server"

	ReadyInitialDelay = 100 * time.Millisecond
	ReadyMaxDelay     = 2 * time.Second
	ReadyAttempts     = 30
)

type Id string

// Spec describes a database server container.
type Spec struct {
	Tag         string
	Image       string
	Port        int
	HostPort    int
	Env         map[string]string
	Command     []string
	CPULimit    string
	MemoryLimit string
	Network     string
}

// Ref is the image reference, Image with Tag appended unless it carries one.
func (s *Spec) Ref() string {
	if s.Tag != "" && !strings.Contains(s.Image, ":") {
		return s.Image + ":" + s.Tag
	}
	return s.Image
}

type Container struct {
	Id       Id
	Name     string
	HostPort int
}

func (c *Container) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.HostPort)
}

// Name returns a fresh container name for the given image tag.
func Name(tag string) string {
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s-%s-%s", NamePrefix, tag, uuid.NewString())
}

// FreePort asks the kernel for a currently unused TCP port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func Pull(ctx context.Context, timeout time.Duration, image string) error {
	pullCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(pullCtx, "docker", "pull", image).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker pull %s failed: %w,\noutput: %s", image, err, out)
	}
	return nil
}

func runArgs(name string, hostPort int, spec *Spec) []string {
	args := []string{"run", "-d", "--rm", "--name", name}
	args = append(args, "-p", fmt.Sprintf("127.0.0.1:%d:%d", hostPort, spec.Port))

	for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
		args = append(args, "-e", k+"="+spec.Env[k])
	}
	if spec.CPULimit != "" {
		args = append(args, "--cpus="+spec.CPULimit)
	}
	if spec.MemoryLimit != "" {
		args = append(args, "--memory="+spec.MemoryLimit)
	}
	if spec.Network != "" {
		args = append(args, "--network="+spec.Network)
	}

	args = append(args, spec.Ref())
	return append(args, spec.Command...)
}

func Start(ctx context.Context, timeout time.Duration, spec *Spec) (*Container, error) {
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hostPort := spec.HostPort
	if hostPort == 0 {
		port, err := FreePort()
		if err != nil {
			return nil, err
		}
		hostPort = port
	}
	name := Name(spec.Tag)

	out, err := exec.CommandContext(startCtx, "docker", runArgs(name, hostPort, spec)...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("docker run %s failed: %w,\noutput: %s", spec.Image, err, out)
	}

	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}
	return &Container{Id: Id(id), Name: name, HostPort: hostPort}, nil
}

// Remove kills the container and deletes it.
func Remove(ctx context.Context, timeout time.Duration, containerId Id) error {
	rmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(rmCtx, "docker", "rm", "-f", string(containerId)) //nolint:gosec // containerId is controlled internal value
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker rm %s failed: %w,\noutput: %s", containerId, err, out)
	}
	return nil
}

// WaitReady calls check with exponential back-off until it succeeds.
func WaitReady(ctx context.Context, attempts uint, check func(context.Context) error) error {
	if attempts == 0 {
		attempts = ReadyAttempts
	}
	err := retry.Do(
		func() error { return check(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(ReadyInitialDelay),
		retry.MaxDelay(ReadyMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("server did not become ready after %d attempts: %w", attempts, err)
	}
	return nil
}
