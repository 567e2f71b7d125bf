package engine

import (
	"context"
	"time"

	"SceneChain-server/models"
)

// ProjectStore 读取项目
type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
}

// SceneStore 分镜存储，ListScenes 按 order 升序返回。
// CommitGeneration 在同一事务中写入生成结果并删除该分镜的评估
type SceneStore interface {
	ListScenes(ctx context.Context, projectID string) ([]models.Scene, error)
	CommitGeneration(ctx context.Context, scene *models.Scene) error
	SetContinuityFrame(ctx context.Context, projectID, sceneID string, frame []byte) error
}

// AssetStore 引擎只读
type AssetStore interface {
	GetAsset(ctx context.Context, assetID string) (*models.Asset, error)
	ListAssets(ctx context.Context, projectID string) ([]models.Asset, error)
}

// EvaluationStore 每个分镜至多一条评估。分镜当前片段不是 ev.ClipUrl 时
// SaveEvaluation 返回 models.ErrClipChanged
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, projectID, sceneID string, ev *models.Evaluation) error
	ListEvaluations(ctx context.Context, projectID string) (map[string]models.Evaluation, error)
}

// BlobFetcher 按定位符读取图片或片段
type BlobFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// ClipStore 保存生成的片段。每次生成用 jobHandle 区分对象，不覆盖旧片段；
// List 返回每个分镜最新的片段
type ClipStore interface {
	BlobFetcher
	Save(ctx context.Context, projectID, sceneID, jobHandle string, clip []byte) (string, error)
	List(ctx context.Context, projectID string) (map[string]string, error)
	Delete(ctx context.Context, locator string) error
}

// SynthesisRequest 一次视频合成提交
type SynthesisRequest struct {
	ProjectID string
	SceneID   string
	Prompt    string
	Settings  models.GenerationSettings
	Seed      Seed
	Duration  time.Duration
}

// JobStatus 一次轮询结果，Error 仅在 Done 时有意义
type JobStatus struct {
	Done    bool
	Clip    []byte
	ClipURL string // 合成服务给出的临时地址
	Error   string
}

type Synthesizer interface {
	Submit(ctx context.Context, req SynthesisRequest) (string, error)
	Poll(ctx context.Context, jobHandle string) (JobStatus, error)
}

// JobCanceler 支持取消远端任务的合成服务实现
type JobCanceler interface {
	Cancel(ctx context.Context, jobHandle string) error
}

// MediaExtractor 从片段中抽帧和音轨
type MediaExtractor interface {
	FrameAt(ctx context.Context, clip []byte, at time.Duration) ([]byte, error)
	LastFrame(ctx context.Context, clip []byte) ([]byte, error)
	ExtractAudio(ctx context.Context, clip []byte) ([]byte, error)
}

// VisionScorer 按提示词给帧打分，并比对台词
type VisionScorer interface {
	ScoreFrame(ctx context.Context, frame []byte, expectedPrompt string) (models.SubScore, error)
	CompareDialogue(ctx context.Context, expected, transcribed string) (models.SubScore, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TranscriberFactory 用调用方提供的凭证构造转写器
type TranscriberFactory func(credential string) (Transcriber, error)
