package engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Generating 正在生成的分镜。提交任务前 JobHandle 为空
type Generating struct {
	ProjectID string    `json:"projectId"`
	SceneID   string    `json:"sceneId"`
	JobHandle string    `json:"jobHandle"`
	StartedAt time.Time `json:"startedAt"`
}

type flight struct {
	Generating
	cancel context.CancelFunc
}

// inFlight 某类操作进行中的分镜集合
type inFlight struct {
	mu      sync.Mutex
	entries map[string]*flight
	now     func() time.Time
}

func newInFlight(now func() time.Time) *inFlight {
	return &inFlight{entries: make(map[string]*flight), now: now}
}

// begin 分镜已有进行中的操作时返回 false
func (f *inFlight) begin(projectID, sceneID string, cancel context.CancelFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[sceneID]; ok {
		return false
	}
	f.entries[sceneID] = &flight{
		Generating: Generating{ProjectID: projectID, SceneID: sceneID, StartedAt: f.now()},
		cancel:     cancel,
	}
	return true
}

func (f *inFlight) setJob(sceneID, jobHandle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[sceneID]; ok {
		e.JobHandle = jobHandle
	}
}

func (f *inFlight) end(sceneID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, sceneID)
}

// cancel 仅取消属于 projectID 的条目
func (f *inFlight) cancel(projectID, sceneID string) bool {
	f.mu.Lock()
	e, ok := f.entries[sceneID]
	f.mu.Unlock()
	if !ok || e.cancel == nil || e.ProjectID != projectID {
		return false
	}
	e.cancel()
	return true
}

func (f *inFlight) get(sceneID string) (Generating, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[sceneID]
	if !ok {
		return Generating{}, false
	}
	return e.Generating, true
}

// list 返回某项目的条目（projectID 为空时返回全部），按分镜 id 排序
func (f *inFlight) list(projectID string) []Generating {
	f.mu.Lock()
	out := make([]Generating, 0, len(f.entries))
	for _, e := range f.entries {
		if projectID == "" || e.ProjectID == projectID {
			out = append(out, e.Generating)
		}
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SceneID < out[j].SceneID })
	return out
}
