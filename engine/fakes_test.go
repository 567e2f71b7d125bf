package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"SceneChain-server/models"
)

var errNotFound = errors.New("not found")

type memStore struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	scenes   map[string][]models.Scene
	assets   map[string]models.Asset
	evals    map[string]models.Evaluation

	saveSceneErr  error
	frameErr      error
	deleteEvalErr error
	saveEvalErr   error
}

func newMemStore() *memStore {
	return &memStore{
		projects: make(map[string]*models.Project),
		scenes:   make(map[string][]models.Scene),
		assets:   make(map[string]models.Asset),
		evals:    make(map[string]models.Evaluation),
	}
}

func (m *memStore) GetProject(_ context.Context, projectID string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, errNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListScenes(_ context.Context, projectID string) ([]models.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Scene, len(m.scenes[projectID]))
	copy(out, m.scenes[projectID])
	return out, nil
}

func (m *memStore) scene(projectID, sceneID string) models.Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scenes[projectID] {
		if s.ID == sceneID {
			return s
		}
	}
	panic("no scene " + sceneID)
}

// CommitGeneration 与真实存储一致：任一步失败都不改动分镜和评估
func (m *memStore) CommitGeneration(_ context.Context, scene *models.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveSceneErr != nil {
		return m.saveSceneErr
	}
	if m.deleteEvalErr != nil {
		return m.deleteEvalErr
	}
	list := m.scenes[scene.ProjectId]
	for i := range list {
		if list[i].ID == scene.ID {
			list[i].Status = scene.Status
			list[i].ClipUrl = scene.ClipUrl
			list[i].ClipDurable = scene.ClipDurable
			list[i].SettingsUsed = scene.SettingsUsed
			list[i].ContinuityFrame = nil
			list[i].GeneratedAt = scene.GeneratedAt
			delete(m.evals, scene.ID)
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) SetContinuityFrame(_ context.Context, projectID, sceneID string, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frameErr != nil {
		return m.frameErr
	}
	list := m.scenes[projectID]
	for i := range list {
		if list[i].ID == sceneID && list[i].Status == models.SceneStatusGenerated {
			list[i].ContinuityFrame = frame
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) GetAsset(_ context.Context, assetID string) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[assetID]
	if !ok {
		return nil, errNotFound
	}
	return &a, nil
}

func (m *memStore) ListAssets(_ context.Context, projectID string) ([]models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Asset
	for _, a := range m.assets {
		if a.ProjectId == projectID {
			out = append(out, a)
		}
	}
	// map 无序，按 id 排序保证参考池稳定
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (m *memStore) SaveEvaluation(_ context.Context, projectID, sceneID string, ev *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveEvalErr != nil {
		return m.saveEvalErr
	}
	var current *models.Scene
	for i, sc := range m.scenes[projectID] {
		if sc.ID == sceneID {
			current = &m.scenes[projectID][i]
		}
	}
	if current == nil {
		return errNotFound
	}
	if current.Status != models.SceneStatusGenerated || current.ClipUrl != ev.ClipUrl {
		return fmt.Errorf("%w: scene %s", models.ErrClipChanged, sceneID)
	}
	ev.ProjectId = projectID
	ev.SceneId = sceneID
	m.evals[sceneID] = *ev
	return nil
}

func (m *memStore) ListEvaluations(_ context.Context, projectID string) (map[string]models.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Evaluation)
	for id, ev := range m.evals {
		if ev.ProjectId == projectID {
			out[id] = ev
		}
	}
	return out, nil
}

func (m *memStore) evaluation(sceneID string) (models.Evaluation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.evals[sceneID]
	return ev, ok
}

// memClips 同时充当图片和片段存储
type memClips struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	seq     map[string]int
	deleted []string
	saveErr error
	saves   int
}

func newMemClips() *memClips {
	return &memClips{blobs: make(map[string][]byte), seq: make(map[string]int)}
}

func (c *memClips) Fetch(_ context.Context, locator string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("%s: %w", locator, errNotFound)
	}
	return b, nil
}

func (c *memClips) Save(_ context.Context, projectID, sceneID, jobHandle string, clip []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	if c.saveErr != nil {
		return "", c.saveErr
	}
	loc := fmt.Sprintf("projects/%s/scenes/%s/%s.mp4", projectID, sceneID, jobHandle)
	c.blobs[loc] = clip
	c.seq[loc] = c.saves
	return loc, nil
}

// List 每个分镜取最后保存的片段
func (c *memClips) List(_ context.Context, projectID string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	prefix := "projects/" + projectID + "/scenes/"
	for loc := range c.blobs {
		rest, ok := strings.CutPrefix(loc, prefix)
		if !ok {
			continue
		}
		sceneID := strings.SplitN(rest, "/", 2)[0]
		if prev, ok := out[sceneID]; !ok || c.seq[loc] > c.seq[prev] {
			out[sceneID] = loc
		}
	}
	return out, nil
}

func (c *memClips) Delete(_ context.Context, locator string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blobs, locator)
	delete(c.seq, locator)
	c.deleted = append(c.deleted, locator)
	return nil
}

func (c *memClips) blob(locator string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[locator]
	return b, ok
}

type fakeSynth struct {
	mu        sync.Mutex
	submitted []SynthesisRequest
	cancelled []string
	submitErr error
	// poll 返回某任务第 n 次（从 1 开始）轮询的结果
	poll  func(handle string, n int) (JobStatus, error)
	polls map[string]int
}

func newFakeSynth() *fakeSynth {
	s := &fakeSynth{polls: make(map[string]int)}
	s.poll = func(handle string, n int) (JobStatus, error) {
		if n < 2 {
			return JobStatus{}, nil
		}
		return JobStatus{Done: true, Clip: []byte("clip:" + handle), ClipURL: "https://worker/" + handle + ".mp4"}, nil
	}
	return s
}

func (s *fakeSynth) Submit(_ context.Context, req SynthesisRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.submitted = append(s.submitted, req)
	return fmt.Sprintf("job-%d", len(s.submitted)), nil
}

func (s *fakeSynth) Poll(_ context.Context, handle string) (JobStatus, error) {
	s.mu.Lock()
	s.polls[handle]++
	n := s.polls[handle]
	poll := s.poll
	s.mu.Unlock()
	return poll(handle, n)
}

func (s *fakeSynth) Cancel(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, handle)
	return nil
}

func (s *fakeSynth) lastRequest() SynthesisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted[len(s.submitted)-1]
}

type fakeMedia struct {
	frameErr error
	lastErr  error
	audioErr error
}

func (f *fakeMedia) FrameAt(_ context.Context, clip []byte, at time.Duration) ([]byte, error) {
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	if at == 0 {
		return []byte("first|" + string(clip)), nil
	}
	return []byte(fmt.Sprintf("frame@%s|%s", at, clip)), nil
}

func (f *fakeMedia) LastFrame(_ context.Context, clip []byte) ([]byte, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return []byte("last|" + string(clip)), nil
}

func (f *fakeMedia) ExtractAudio(_ context.Context, clip []byte) ([]byte, error) {
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	return []byte("audio|" + string(clip)), nil
}

type fakeVision struct {
	first, last, dialogue float64
	scoreErr              error
	compareErr            error
	prompts               []string
	mu                    sync.Mutex

	// gate 非空时 ScoreFrame 先通知 entered，再等待 gate 关闭
	gate    chan struct{}
	entered chan struct{}
}

func (v *fakeVision) ScoreFrame(_ context.Context, frame []byte, prompt string) (models.SubScore, error) {
	v.mu.Lock()
	v.prompts = append(v.prompts, prompt)
	gate, entered := v.gate, v.entered
	v.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if v.scoreErr != nil {
		return models.SubScore{}, v.scoreErr
	}
	if strings.HasPrefix(string(frame), "first|") {
		return models.SubScore{Score: v.first, Analysis: "first ok"}, nil
	}
	return models.SubScore{Score: v.last, Analysis: "last ok"}, nil
}

func (v *fakeVision) CompareDialogue(_ context.Context, expected, transcribed string) (models.SubScore, error) {
	if v.compareErr != nil {
		return models.SubScore{}, v.compareErr
	}
	return models.SubScore{Score: v.dialogue, Analysis: expected + " vs " + transcribed}, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

type harness struct {
	engine *Engine
	store  *memStore
	clips  *memClips
	synth  *fakeSynth
	media  *fakeMedia
	vision *fakeVision
	creds  []string
	trans  *fakeTranscriber
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  newMemStore(),
		clips:  newMemClips(),
		synth:  newFakeSynth(),
		media:  &fakeMedia{},
		vision: &fakeVision{first: 80, last: 60, dialogue: 40},
		trans:  &fakeTranscriber{text: "hello there"},
	}
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.PollTimeout = 2 * time.Second
	h.engine = New(cfg, Deps{
		Projects:    h.store,
		Scenes:      h.store,
		Assets:      h.store,
		Evaluations: h.store,
		Clips:       h.clips,
		Synthesizer: h.synth,
		Media:       h.media,
		Vision:      h.vision,
		NewTranscriber: func(credential string) (Transcriber, error) {
			h.creds = append(h.creds, credential)
			return h.trans, nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

// addProject 创建含 n 个未生成分镜 s1..sn 的项目
func (h *harness) addProject(id string, n int, refs ...string) {
	h.store.projects[id] = &models.Project{ID: id, AspectRatio: "9:16", ReferenceImages: refs}
	for _, r := range refs {
		h.clips.blobs[r] = []byte("img:" + r)
	}
	for i := 1; i <= n; i++ {
		h.store.scenes[id] = append(h.store.scenes[id], models.Scene{
			ID:        fmt.Sprintf("s%d", i),
			ProjectId: id,
			Order:     i,
			Prompt:    fmt.Sprintf("scene %d", i),
			Duration:  4,
			Status:    models.SceneStatusNotGenerated,
		})
	}
}

func (h *harness) updateScene(projectID, sceneID string, fn func(*models.Scene)) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	list := h.store.scenes[projectID]
	for i := range list {
		if list[i].ID == sceneID {
			fn(&list[i])
		}
	}
}
