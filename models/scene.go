package models

import (
	"database/sql/driver"
	"strconv"
	"strings"
	"time"
)

// 分镜生成状态。Generating 不落库，由引擎的 in-flight 集合维护
const (
	SceneStatusNotGenerated = "not_generated"
	SceneStatusGenerating   = "generating"
	SceneStatusGenerated    = "generated"
)

type Scene struct {
	ID              string  `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId       string  `gorm:"index;type:varchar(64)" json:"projectId"`
	Order           int     `gorm:"column:order" json:"order"`
	Prompt          string  `gorm:"type:text" json:"prompt"`
	Dialogue        string  `gorm:"type:text" json:"dialogue"`
	CameraDirective string  `json:"cameraDirective"`
	Duration        float64 `json:"duration"` // 秒
	Status          string  `gorm:"type:varchar(32)" json:"status"`
	ClipUrl         string  `json:"clipUrl"`
	// ClipDurable 为 false 表示 ClipUrl 是合成服务返回的临时地址
	ClipDurable     bool                `json:"clipDurable"`
	ContinuityFrame []byte              `gorm:"type:longblob" json:"-"`
	Settings        *SettingsOverride   `gorm:"type:json" json:"settings,omitempty"`
	SettingsUsed    *GenerationSettings `gorm:"type:json" json:"settingsUsed,omitempty"`
	ReferenceMode   string              `gorm:"type:varchar(16)" json:"referenceMode"`
	AttachedAssets  AttachedAssets      `gorm:"type:json" json:"attachedAssets"`
	GeneratedAt     *time.Time          `json:"generatedAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func (Scene) TableName() string {
	return "scene"
}

// HasContinuityFrame 连续帧只在 Generated 状态下有效
func (s *Scene) HasContinuityFrame() bool {
	return s.Status == SceneStatusGenerated && len(s.ContinuityFrame) > 0
}

// AssetRef 分镜挂载的资产引用
type AssetRef struct {
	AssetId  string    `json:"asset_id"`
	Role     AssetRole `json:"role"`
	Priority int       `json:"priority"`
}

type AttachedAssets []AssetRef

func (a AttachedAssets) Value() (driver.Value, error) {
	return jsonValue(a)
}

func (a *AttachedAssets) Scan(value interface{}) error {
	return jsonScan(value, a)
}

// 参考模式
const (
	ReferenceModeDefault  = ""
	ReferenceModePrevious = "previous"
)

// ReferenceModeKind 解析后的参考模式
type ReferenceModeKind int

const (
	ReferenceModeKindDefault ReferenceModeKind = iota
	ReferenceModeKindPrevious
	ReferenceModeKindIndex
)

// ParseReferenceMode 解析参考模式。数字表示 1 起始的参考槽位；
// 无法识别的值与未设置等价，ok 返回 false 供调用方记录
func ParseReferenceMode(mode string) (kind ReferenceModeKind, index int, ok bool) {
	mode = strings.TrimSpace(mode)
	switch strings.ToLower(mode) {
	case ReferenceModeDefault:
		return ReferenceModeKindDefault, 0, true
	case ReferenceModePrevious:
		return ReferenceModeKindPrevious, 0, true
	}
	n, err := strconv.Atoi(mode)
	if err != nil {
		return ReferenceModeKindDefault, 0, false
	}
	return ReferenceModeKindIndex, n, true
}
