package system

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// DetectDevice 在 PATH 中存在 nvidia-smi 且能列出 GPU 时返回 cuda，否则返回 cpu。
func DetectDevice(ctx context.Context) string {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return DeviceCPU
	}
	out, err := exec.CommandContext(ctx, path, "-L").Output()
	if err != nil || !strings.Contains(string(out), "GPU") {
		return DeviceCPU
	}
	return DeviceCUDA
}

// CPUUsage 返回当前 CPU 使用率（百分比）。
func CPUUsage(ctx context.Context) (float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("could not get CPU usage")
	}
	return percentages[0], nil
}

// MemoryUsage 返回当前内存使用率（百分比）。
func MemoryUsage(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
