package models

import "time"

type Project struct {
	ID                string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title             string     `json:"title"`
	AspectRatio       string     `gorm:"type:varchar(16)" json:"aspectRatio"`
	DefaultModel      string     `gorm:"type:varchar(128)" json:"defaultModel"`
	DefaultResolution string     `gorm:"type:varchar(32)" json:"defaultResolution"`
	ReferenceImages   StringList `gorm:"type:json" json:"referenceImages"` // 通用参考图池（图片定位符）
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}

// AssetRole 资产角色
type AssetRole string

const (
	AssetRoleSubject  AssetRole = "subject"
	AssetRoleBackdrop AssetRole = "backdrop"
	AssetRoleProp     AssetRole = "prop"
)

// Asset 由资产管理模块维护，本服务只读
type Asset struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId    string    `gorm:"index;type:varchar(64)" json:"projectId"`
	Role         AssetRole `gorm:"type:varchar(16)" json:"role"`
	ImageLocator string    `json:"imageLocator"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (Asset) TableName() string {
	return "asset"
}
