// Package health 提供依赖健康检查与汇总报告，供 /sys/health 使用。
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Checker 定义健康检查函数原型。
type Checker func() error

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// Result 是单项检查结果。
type Result struct {
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report 是一次完整检查的汇总，任意一项失败则整体为 DOWN。
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks,omitempty"`
}

// Registry 保存具名检查项，可并发执行。
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register 注册检查项，同名覆盖。
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Names 返回已注册的检查项名称（有序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for n := range r.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run 并发执行所有检查项。ctx 取消时尚未返回的检查记为 DOWN。
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for n, c := range r.checkers {
		checkers[n] = c
	}
	r.mu.RUnlock()

	report := Report{Status: StatusUp, Checks: make(map[string]Result, len(checkers))}
	if len(checkers) == 0 {
		return report
	}

	type named struct {
		name string
		res  Result
	}
	results := make(chan named, len(checkers))
	for name, c := range checkers {
		go func() {
			start := time.Now()
			res := Result{Status: StatusUp}
			if err := c(); err != nil {
				res = Result{Status: StatusDown, Error: err.Error()}
			}
			res.Duration = time.Since(start)
			results <- named{name: name, res: res}
		}()
	}

	for range len(checkers) {
		select {
		case n := <-results:
			report.Checks[n.name] = n.res
		case <-ctx.Done():
			for name := range checkers {
				if _, ok := report.Checks[name]; !ok {
					report.Checks[name] = Result{Status: StatusDown, Error: ctx.Err().Error()}
				}
			}
			report.Status = StatusDown
			return report
		}
	}
	for _, res := range report.Checks {
		if res.Status != StatusUp {
			report.Status = StatusDown
			break
		}
	}
	return report
}
