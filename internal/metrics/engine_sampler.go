package metrics

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const defaultSampleInterval = 10 * time.Second

// EngineSampler periodically samples CPU and resident memory of the engine
// process and publishes them as gauges. The PID is looked up through a
// callback so the sampler survives restarts of the supervised process.
type EngineSampler struct {
	pidFn    func() int
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewEngineSampler(pidFn func() int, interval time.Duration) *EngineSampler {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	return &EngineSampler{
		pidFn:    pidFn,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *EngineSampler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.sampleOnce()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *EngineSampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *EngineSampler) sampleOnce() {
	pid := s.pidFn()
	if pid <= 0 {
		SetEngineResources(0, 0)
		return
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		SetEngineResources(0, 0)
		return
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		cpu = 0
	}
	var memMB float64
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		memMB = float64(mem.RSS) / 1024 / 1024
	}
	SetEngineResources(cpu, memMB)
}
