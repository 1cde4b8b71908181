package container

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	a := Name("16")
	b := Name("16")

	assert.True(t, strings.HasPrefix(a, "aiopg-benchmark-server-16-"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(Name(""), "aiopg-benchmark-server-latest-"))
}

func TestRunArgs(t *testing.T) {
	spec := &Spec{
		Tag:         "16",
		Image:       "postgres",
		Port:        5432,
		Env:         map[string]string{"POSTGRES_USER": "postgres", "POSTGRES_PASSWORD": "secret"},
		Command:     []string{"-c", "fsync=off"},
		MemoryLimit: "1g",
	}

	args := runArgs("db", 15432, spec)

	assert.Equal(t, []string{
		"run", "-d", "--rm", "--name", "db",
		"-p", "127.0.0.1:15432:5432",
		"-e", "POSTGRES_PASSWORD=secret",
		"-e", "POSTGRES_USER=postgres",
		"--memory=1g",
		"postgres:16",
		"-c", "fsync=off",
	}, args)
}

func TestFreePort(t *testing.T) {
	port, err := FreePort()
	require.NoError(t, err)
	assert.Positive(t, port)
}

func TestWaitReady(t *testing.T) {
	calls := 0
	err := WaitReady(context.Background(), 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitReady_GivesUp(t *testing.T) {
	refused := errors.New("connection refused")
	err := WaitReady(context.Background(), 2, func(context.Context) error {
		return refused
	})
	assert.ErrorIs(t, err, refused)
}

func TestSampler_Consume(t *testing.T) {
	stream := `
{"memory_stats":{"usage":100},"cpu_stats":{"system_cpu_usage":2000,"online_cpus":2,"cpu_usage":{"total_usage":500}},"precpu_stats":{"system_cpu_usage":1000,"cpu_usage":{"total_usage":400}}}
{"memory_stats":{"usage":300},"cpu_stats":{"system_cpu_usage":3000,"online_cpus":2,"cpu_usage":{"total_usage":600}},"precpu_stats":{"system_cpu_usage":2000,"cpu_usage":{"total_usage":500}}}
{"memory_stats":{"usage":200},"cpu_stats":{"system_cpu_usage":3000,"online_cpus":2,"cpu_usage":{"total_usage":600}},"precpu_stats":{"system_cpu_usage":3000,"cpu_usage":{"total_usage":600}}}
`
	s := NewSampler("abc", "")
	s.consume(strings.NewReader(stream))

	res := s.aggregate()
	assert.Equal(t, 3, res.Samples)
	assert.Empty(t, res.Warnings)
	assert.InDelta(t, 100, res.Memory.MinBytes, 1e-9)
	assert.InDelta(t, 200, res.Memory.AvgBytes, 1e-9)
	assert.InDelta(t, 300, res.Memory.MaxBytes, 1e-9)
	assert.InDelta(t, 20, res.Cpu.AvgPercent, 1e-9)
}

func TestSampler_LowSamples(t *testing.T) {
	s := NewSampler("abc", "")
	res := s.aggregate()

	assert.Zero(t, res.Samples)
	assert.Equal(t, []string{"low samples"}, res.Warnings)
}
