package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"SceneChain-server/models"
)

type SeedKind string

const (
	SeedNone            SeedKind = "none"
	SeedReferenceImages SeedKind = "reference_images"
	SeedStartFrame      SeedKind = "start_frame"
)

type Image struct {
	Data     []byte
	MimeType string
	Locator  string
}

// Seed 单次生成的图片输入：参考图列表或起始帧，二者不会同时存在。
// 请使用构造函数创建
type Seed struct {
	Kind            SeedKind
	ReferenceImages []Image
	StartFrame      *Image
}

func NoSeed() Seed {
	return Seed{Kind: SeedNone}
}

func ReferenceImagesSeed(images []Image) Seed {
	if len(images) == 0 {
		return NoSeed()
	}
	return Seed{Kind: SeedReferenceImages, ReferenceImages: images}
}

func StartFrameSeed(frame Image) Seed {
	return Seed{Kind: SeedStartFrame, StartFrame: &frame}
}

// ResolveInput 项目上下文中的一个分镜
type ResolveInput struct {
	Project *models.Project
	Scenes  []models.Scene // 按 order 排序
	Index   int            // 待解析分镜的下标
}

func (in ResolveInput) scene() *models.Scene {
	return &in.Scenes[in.Index]
}

// strategy 返回 matched=false 时交给下一个策略
type strategy struct {
	name    string
	resolve func(ctx context.Context, in ResolveInput) (seed Seed, matched bool, err error)
}

// Resolver 依次尝试挂载资产、显式参考模式、默认模式，第一个命中的生效
type Resolver struct {
	assets     AssetStore
	images     BlobFetcher
	log        *slog.Logger
	strategies []strategy
}

func NewResolver(assets AssetStore, images BlobFetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{assets: assets, images: images, log: logger}
	r.strategies = []strategy{
		{name: "attached_assets", resolve: r.fromAttachedAssets},
		{name: "explicit_mode", resolve: r.fromExplicitMode},
		{name: "default_mode", resolve: r.fromDefaultMode},
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (Seed, error) {
	if in.Index < 0 || in.Index >= len(in.Scenes) {
		return Seed{}, ErrSceneNotFound
	}
	for _, s := range r.strategies {
		seed, matched, err := s.resolve(ctx, in)
		if err != nil {
			return Seed{}, fmt.Errorf("resolve references (%s): %w", s.name, err)
		}
		if matched {
			r.log.Debug("references resolved",
				"scene_id", in.scene().ID, "strategy", s.name, "seed", seed.Kind)
			return seed, nil
		}
	}
	return NoSeed(), nil
}

func (r *Resolver) fromAttachedAssets(ctx context.Context, in ResolveInput) (Seed, bool, error) {
	refs := in.scene().AttachedAssets
	if len(refs) == 0 {
		return Seed{}, false, nil
	}
	sorted := make([]models.AssetRef, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	images := make([]Image, 0, len(sorted))
	for _, ref := range sorted {
		asset, err := r.assets.GetAsset(ctx, ref.AssetId)
		if err != nil {
			return Seed{}, false, err
		}
		img, err := r.load(ctx, asset.ImageLocator)
		if err != nil {
			return Seed{}, false, err
		}
		images = append(images, img)
	}
	return ReferenceImagesSeed(images), true, nil
}

func (r *Resolver) fromExplicitMode(ctx context.Context, in ResolveInput) (Seed, bool, error) {
	scene := in.scene()
	kind, index, ok := models.ParseReferenceMode(scene.ReferenceMode)
	if !ok {
		r.log.Warn("unrecognised reference mode, using default",
			"scene_id", scene.ID, "mode", scene.ReferenceMode)
	}
	switch kind {
	case models.ReferenceModeKindPrevious:
		return r.previousFrame(in), true, nil
	case models.ReferenceModeKindIndex:
		seed, err := r.fromSlot(ctx, in, index)
		return seed, err == nil, err
	}
	return Seed{}, false, nil
}

func (r *Resolver) fromDefaultMode(ctx context.Context, in ResolveInput) (Seed, bool, error) {
	if in.Index == 0 {
		seed, err := r.fromSlot(ctx, in, 1)
		return seed, err == nil, err
	}
	return r.previousFrame(in), true, nil
}

// previousFrame 上一分镜没有连续帧时退化为纯提示词
func (r *Resolver) previousFrame(in ResolveInput) Seed {
	scene := in.scene()
	if in.Index == 0 {
		r.log.Warn("no previous scene, generating from prompt only", "scene_id", scene.ID)
		return NoSeed()
	}
	prev := &in.Scenes[in.Index-1]
	if !prev.HasContinuityFrame() {
		r.log.Warn("previous scene has no continuity frame, generating from prompt only",
			"scene_id", scene.ID, "previous_scene_id", prev.ID)
		return NoSeed()
	}
	return StartFrameSeed(Image{
		Data:     prev.ContinuityFrame,
		MimeType: http.DetectContentType(prev.ContinuityFrame),
	})
}

// fromSlot 从参考池取 1 起始的槽位；越界时使用整个参考池
func (r *Resolver) fromSlot(ctx context.Context, in ResolveInput, slot int) (Seed, error) {
	pool, err := r.pool(ctx, in.Project)
	if err != nil {
		return Seed{}, err
	}
	if slot >= 1 && slot <= len(pool) {
		img, err := r.load(ctx, pool[slot-1])
		if err != nil {
			return Seed{}, err
		}
		return ReferenceImagesSeed([]Image{img}), nil
	}

	r.log.Warn("reference slot out of range, using whole pool",
		"scene_id", in.scene().ID, "slot", slot, "pool_size", len(pool))
	images := make([]Image, 0, len(pool))
	for _, loc := range pool {
		img, err := r.load(ctx, loc)
		if err != nil {
			return Seed{}, err
		}
		images = append(images, img)
	}
	return ReferenceImagesSeed(images), nil
}

// pool 项目有资产时用资产，否则用项目的通用参考图
func (r *Resolver) pool(ctx context.Context, project *models.Project) ([]string, error) {
	if project == nil {
		return nil, nil
	}
	if r.assets != nil {
		assets, err := r.assets.ListAssets(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		if len(assets) > 0 {
			locs := make([]string, 0, len(assets))
			for _, a := range assets {
				locs = append(locs, a.ImageLocator)
			}
			return locs, nil
		}
	}
	return project.ReferenceImages, nil
}

func (r *Resolver) load(ctx context.Context, locator string) (Image, error) {
	data, err := r.images.Fetch(ctx, locator)
	if err != nil {
		return Image{}, fmt.Errorf("fetch image %s: %w", locator, err)
	}
	return Image{Data: data, MimeType: http.DetectContentType(data), Locator: locator}, nil
}
