// Package engine 负责分镜片段生成、分镜间的画面衔接以及片段评估
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"SceneChain-server/models"
)

type Config struct {
	// Defaults 项目和覆盖设置都未指定时使用
	Defaults models.GenerationSettings
	// DefaultClipDuration 分镜未设置时长时使用
	DefaultClipDuration time.Duration
	PollInterval        time.Duration
	PollTimeout         time.Duration
	// ContinuityMargin 连续帧距片段末尾的提前量
	ContinuityMargin time.Duration
}

func DefaultConfig() Config {
	return Config{
		Defaults: models.GenerationSettings{
			AspectRatio: "16:9",
			Model:       "veo-3.0-fast-generate-001",
			Resolution:  "720p",
		},
		DefaultClipDuration: 8 * time.Second,
		PollInterval:        5 * time.Second,
		PollTimeout:         10 * time.Minute,
		ContinuityMargin:    100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Defaults.AspectRatio == "" {
		c.Defaults.AspectRatio = d.Defaults.AspectRatio
	}
	if c.Defaults.Model == "" {
		c.Defaults.Model = d.Defaults.Model
	}
	if c.Defaults.Resolution == "" {
		c.Defaults.Resolution = d.Defaults.Resolution
	}
	if c.DefaultClipDuration <= 0 {
		c.DefaultClipDuration = d.DefaultClipDuration
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.ContinuityMargin < 0 {
		c.ContinuityMargin = 0
	}
	return c
}

// Deps 引擎依赖的外部组件。Images 默认使用 Clips；
// NewTranscriber 为 nil 时不做音频评估
type Deps struct {
	Projects       ProjectStore
	Scenes         SceneStore
	Assets         AssetStore
	Evaluations    EvaluationStore
	Images         BlobFetcher
	Clips          ClipStore
	Synthesizer    Synthesizer
	Media          MediaExtractor
	Vision         VisionScorer
	NewTranscriber TranscriberFactory
	Logger         *slog.Logger
}

type Engine struct {
	cfg            Config
	projects       ProjectStore
	scenes         SceneStore
	evals          EvaluationStore
	clips          ClipStore
	synth          Synthesizer
	media          MediaExtractor
	vision         VisionScorer
	newTranscriber TranscriberFactory
	resolver       *Resolver
	log            *slog.Logger
	now            func() time.Time

	generating *inFlight
	evaluating *inFlight
}

func New(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	images := deps.Images
	if images == nil {
		images = deps.Clips
	}
	e := &Engine{
		cfg:            cfg.withDefaults(),
		projects:       deps.Projects,
		scenes:         deps.Scenes,
		evals:          deps.Evaluations,
		clips:          deps.Clips,
		synth:          deps.Synthesizer,
		media:          deps.Media,
		vision:         deps.Vision,
		newTranscriber: deps.NewTranscriber,
		resolver:       NewResolver(deps.Assets, images, logger),
		log:            logger.With("component", "engine"),
		now:            time.Now,
	}
	e.generating = newInFlight(e.now)
	e.evaluating = newInFlight(e.now)
	return e
}

// Cancel 取消项目下某分镜进行中的生成，分镜保持调用前的状态。
// 分镜不属于该项目时返回 false
func (e *Engine) Cancel(projectID, sceneID string) bool {
	return e.generating.cancel(projectID, sceneID)
}

// GenerationState 进行中的分镜报告 Generating，其余返回已存状态
func (e *Engine) GenerationState(scene *models.Scene) string {
	if _, ok := e.generating.get(scene.ID); ok {
		return models.SceneStatusGenerating
	}
	if scene.Status == "" {
		return models.SceneStatusNotGenerated
	}
	return scene.Status
}

// ProjectStatus Clips 以分镜记录为准，包括未持久化的临时地址（见 TransientClips）
type ProjectStatus struct {
	ProjectID      string                       `json:"projectId"`
	Generating     []Generating                 `json:"generating"`
	Evaluating     []string                     `json:"evaluating"`
	Clips          map[string]string            `json:"clips"`
	TransientClips []string                     `json:"transientClips"`
	Evaluations    map[string]models.Evaluation `json:"evaluations"`
}

func (e *Engine) Status(ctx context.Context, projectID string) (*ProjectStatus, error) {
	clips, err := e.clips.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	scenes, err := e.scenes.ListScenes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	transient := []string{}
	for _, sc := range scenes {
		if sc.Status != models.SceneStatusGenerated || sc.ClipUrl == "" {
			delete(clips, sc.ID)
			continue
		}
		clips[sc.ID] = sc.ClipUrl
		if !sc.ClipDurable {
			transient = append(transient, sc.ID)
		}
	}
	evals, err := e.evals.ListEvaluations(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	evaluating := e.evaluating.list(projectID)
	ids := make([]string, 0, len(evaluating))
	for _, g := range evaluating {
		ids = append(ids, g.SceneID)
	}
	return &ProjectStatus{
		ProjectID:      projectID,
		Generating:     e.generating.list(projectID),
		Evaluating:     ids,
		Clips:          clips,
		TransientClips: transient,
		Evaluations:    evals,
	}, nil
}

// loadScene 返回项目、按顺序排列的分镜以及 sceneID 的下标
func (e *Engine) loadScene(ctx context.Context, projectID, sceneID string) (*models.Project, []models.Scene, int, error) {
	project, err := e.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, -1, fmt.Errorf("load project: %w", err)
	}
	scenes, err := e.scenes.ListScenes(ctx, projectID)
	if err != nil {
		return nil, nil, -1, fmt.Errorf("load scenes: %w", err)
	}
	for i := range scenes {
		if scenes[i].ID == sceneID {
			return project, scenes, i, nil
		}
	}
	return nil, nil, -1, fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
}
