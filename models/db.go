package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrClipChanged 评估期间分镜已重新生成，评分对应的是旧片段
var ErrClipChanged = errors.New("scene clip changed since it was scored")

// InitDB 打开连接池并自动建表
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn: db,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("GORM 初始化失败: %w", err)
	}

	if err := gormDB.AutoMigrate(&Project{}, &Scene{}, &Asset{}, &Evaluation{}, &Task{}); err != nil {
		return nil, fmt.Errorf("自动建表失败: %w", err)
	}
	log.Println("数据库连接成功 (GORM)")
	return gormDB, nil
}

// Store 基于 GORM 的项目/分镜/资产/评估存储
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	if err := s.DB.WithContext(ctx).First(&p, "id = ?", projectID).Error; err != nil {
		return nil, fmt.Errorf("project %s: %w", projectID, err)
	}
	return &p, nil
}

// ListScenes 按 order 升序返回项目下全部分镜
func (s *Store) ListScenes(ctx context.Context, projectID string) ([]Scene, error) {
	var scenes []Scene
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).
		Find(&scenes).Error
	if err != nil {
		return nil, fmt.Errorf("list scenes for %s: %w", projectID, err)
	}
	return scenes, nil
}

// CommitGeneration 在一个事务内写入新片段并删除旧评估；旧的连续帧随之作废。
// 任一步失败整体回滚，分镜保持调用前的状态
func (s *Store) CommitGeneration(ctx context.Context, scene *Scene) error {
	updates := map[string]interface{}{
		"status":           scene.Status,
		"clip_url":         scene.ClipUrl,
		"clip_durable":     scene.ClipDurable,
		"continuity_frame": nil,
		"generated_at":     scene.GeneratedAt,
		"updated_at":       time.Now(),
	}
	if scene.SettingsUsed != nil {
		updates["settings_used"] = *scene.SettingsUsed
	} else {
		updates["settings_used"] = nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先锁分镜行，与 SaveEvaluation 的加锁顺序一致
		res := tx.Model(&Scene{}).
			Where("id = ? AND project_id = ?", scene.ID, scene.ProjectId).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("save scene %s: %w", scene.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("save scene %s: %w", scene.ID, gorm.ErrRecordNotFound)
		}
		err := tx.Where("scene_id = ? AND project_id = ?", scene.ID, scene.ProjectId).
			Delete(&Evaluation{}).Error
		if err != nil {
			return fmt.Errorf("delete evaluation %s: %w", scene.ID, err)
		}
		return nil
	})
}

func (s *Store) SetContinuityFrame(ctx context.Context, projectID, sceneID string, frame []byte) error {
	err := s.DB.WithContext(ctx).Model(&Scene{}).
		Where("id = ? AND project_id = ? AND status = ?", sceneID, projectID, SceneStatusGenerated).
		Updates(map[string]interface{}{
			"continuity_frame": frame,
			"updated_at":       time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("set continuity frame %s: %w", sceneID, err)
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var a Asset
	if err := s.DB.WithContext(ctx).First(&a, "id = ?", assetID).Error; err != nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, err)
	}
	return &a, nil
}

func (s *Store) ListAssets(ctx context.Context, projectID string) ([]Asset, error) {
	var assets []Asset
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC, id ASC").
		Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("list assets for %s: %w", projectID, err)
	}
	return assets, nil
}

// SaveEvaluation 以 scene_id 为键整体覆盖。分镜当前片段已不是 ev.ClipUrl 时
// 返回 ErrClipChanged，不写入
func (s *Store) SaveEvaluation(ctx context.Context, projectID, sceneID string, ev *Evaluation) error {
	ev.ProjectId = projectID
	ev.SceneId = sceneID
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scene Scene
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status", "clip_url").
			First(&scene, "id = ? AND project_id = ?", sceneID, projectID).Error
		if err != nil {
			return fmt.Errorf("load scene %s: %w", sceneID, err)
		}
		if scene.Status != SceneStatusGenerated || scene.ClipUrl != ev.ClipUrl {
			return fmt.Errorf("%w: scene %s", ErrClipChanged, sceneID)
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(ev).Error; err != nil {
			return fmt.Errorf("save evaluation %s: %w", sceneID, err)
		}
		return nil
	})
}

func (s *Store) ListEvaluations(ctx context.Context, projectID string) (map[string]Evaluation, error) {
	var evs []Evaluation
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).Find(&evs).Error; err != nil {
		return nil, fmt.Errorf("list evaluations for %s: %w", projectID, err)
	}
	res := make(map[string]Evaluation, len(evs))
	for _, ev := range evs {
		res[ev.SceneId] = ev
	}
	return res, nil
}

func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	return CreateTask(s.DB.WithContext(ctx), t)
}

func (s *Store) GetTask(ctx context.Context, taskID string) (*Task, error) {
	return GetTaskByID(s.DB.WithContext(ctx), taskID)
}

// MarkTask 更新任务状态，result 为 nil 时不覆盖
func (s *Store) MarkTask(ctx context.Context, taskID, status string, result *TaskResult, errMsg string) error {
	t := &Task{ID: taskID}
	return t.UpdateStatus(s.DB.WithContext(ctx), status, result, errMsg)
}
