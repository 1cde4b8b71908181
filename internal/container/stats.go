package container

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
)

const (
	DockerSocket       = "/var/run/docker.sock"
	minReliableSamples = 3
)

// ResourceStats summarises what a database container consumed while one
// benchmark variation ran against it.
type ResourceStats struct {
	Memory   MemoryStats `json:"memory"`
	Cpu      CpuStats    `json:"cpu"`
	Samples  int         `json:"samples"`
	Warnings []string    `json:"warnings,omitempty"`
}

type MemoryStats struct {
	MinBytes float64 `json:"min_bytes"`
	AvgBytes float64 `json:"avg_bytes"`
	MaxBytes float64 `json:"max_bytes"`
}

type CpuStats struct {
	MinPercent float64 `json:"min_percent"`
	AvgPercent float64 `json:"avg_percent"`
	MaxPercent float64 `json:"max_percent"`
}

type cpuStatsBlock struct {
	SystemCpuUsage uint64 `json:"system_cpu_usage"`
	OnlineCpus     int    `json:"online_cpus"`
	CpuUsage       struct {
		TotalUsage uint64 `json:"total_usage"`
	} `json:"cpu_usage"`
}

type dockerStats struct {
	MemoryStats struct {
		Usage uint64 `json:"usage"`
	} `json:"memory_stats"`
	CpuStats    cpuStatsBlock `json:"cpu_stats"`
	PreCpuStats cpuStatsBlock `json:"precpu_stats"`
}

// Sampler streams docker stats for one container until stopped.
type Sampler struct {
	containerId Id
	client      *http.Client

	mu        sync.Mutex
	memory    []uint64
	cpu       []float64
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

func unixClient(socket string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		},
	}
}

func NewSampler(containerId Id, socket string) *Sampler {
	if socket == "" {
		socket = DockerSocket
	}
	return &Sampler{
		containerId: containerId,
		client:      unixClient(socket),
		memory:      make([]uint64, 0, 64),
		cpu:         make([]float64, 0, 64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.stream(ctx)
}

func (s *Sampler) Stop() ResourceStats {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ResourceStats{}
	}
	s.running = false
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh

	return s.aggregate()
}

func (s *Sampler) stream(ctx context.Context) {
	defer close(s.doneCh)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-streamCtx.Done():
		}
	}()

	url := fmt.Sprintf("http://localhost/containers/%s/stats?stream=true", s.containerId)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer func() { _ = resp.Body.Close() }()

	s.consume(resp.Body)
}

// consume records samples until the stream ends or breaks.
func (s *Sampler) consume(r io.Reader) {
	decoder := json.NewDecoder(r)
	for {
		var sample dockerStats
		if err := decoder.Decode(&sample); err != nil {
			return
		}
		s.record(&sample)
	}
}

func (s *Sampler) record(sample *dockerStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory = append(s.memory, sample.MemoryStats.Usage)
	if pct, ok := cpuPercent(sample); ok {
		s.cpu = append(s.cpu, pct)
	}
}

// cpuPercent derives usage across all online CPUs from two consecutive
// counters. It reports false when the counters did not advance.
func cpuPercent(sample *dockerStats) (float64, bool) {
	currCpu := sample.CpuStats.CpuUsage.TotalUsage
	prevCpu := sample.PreCpuStats.CpuUsage.TotalUsage
	currSys := sample.CpuStats.SystemCpuUsage
	prevSys := sample.PreCpuStats.SystemCpuUsage
	numCpus := max(sample.CpuStats.OnlineCpus, 1)

	if currSys <= prevSys || currCpu < prevCpu {
		return 0, false
	}
	pct := float64(currCpu-prevCpu) / float64(currSys-prevSys) * float64(numCpus) * 100
	return min(pct, float64(numCpus)*100), true
}

func spread[T uint64 | float64](values []T) (lo, avg, hi float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	minV, maxV := values[0], values[0]
	var total float64
	for _, v := range values {
		minV = min(minV, v)
		maxV = max(maxV, v)
		total += float64(v)
	}
	return float64(minV), total / float64(len(values)), float64(maxV)
}

func (s *Sampler) aggregate() ResourceStats {
	s.mu.Lock()
	memory := s.memory
	cpu := s.cpu
	s.mu.Unlock()

	var result ResourceStats
	result.Samples = len(memory)
	result.Memory.MinBytes, result.Memory.AvgBytes, result.Memory.MaxBytes = spread(memory)
	result.Cpu.MinPercent, result.Cpu.AvgPercent, result.Cpu.MaxPercent = spread(cpu)

	if result.Samples < minReliableSamples {
		result.Warnings = append(result.Warnings, "low samples")
	}
	return result
}
