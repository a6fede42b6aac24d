// Package metrics samples the resident memory of a running process.
package metrics

import (
	"errors"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

var ErrSamplingUnavailable = errors.New("memory sampling unavailable on this platform")

// Sampler reports a process's resident memory in megabytes. The
// capability is probed once at startup; phases depend on the interface,
// not on a presence flag.
type Sampler interface {
	Available() bool
	MemoryMB(pid int) (float64, error)
}

// Detect probes the capability by sampling our own process. On
// platforms where gopsutil cannot read process memory this yields the
// Unavailable variant and the memory phase degrades to no metrics.
func Detect() Sampler {
	s := procSampler{}
	if _, err := s.MemoryMB(os.Getpid()); err != nil {
		return Unavailable{}
	}
	return s
}

type procSampler struct{}

func (procSampler) Available() bool { return true }

func (procSampler) MemoryMB(pid int) (float64, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / 1024 / 1024, nil
}

// Unavailable is the graceful no-op variant.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) MemoryMB(int) (float64, error) { return 0, ErrSamplingUnavailable }
