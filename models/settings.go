package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// GenerationSettings 单次生成调用实际使用的参数
type GenerationSettings struct {
	AspectRatio string `json:"aspect_ratio"`
	Model       string `json:"model"`
	Resolution  string `json:"resolution"`
	Loop        bool   `json:"loop"`
}

// SettingsOverride 分镜/请求级别的覆盖项。宽高比只取项目设置，不允许覆盖
type SettingsOverride struct {
	Model      string `json:"model,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Loop       *bool  `json:"loop,omitempty"`
}

func (s GenerationSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *GenerationSettings) Scan(value interface{}) error {
	return jsonScan(value, s)
}

func (o SettingsOverride) Value() (driver.Value, error) {
	return json.Marshal(o)
}

func (o *SettingsOverride) Scan(value interface{}) error {
	return jsonScan(value, o)
}

// StringList JSON 数组列
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return jsonValue(l)
}

func (l *StringList) Scan(value interface{}) error {
	return jsonScan(value, l)
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// jsonScan JSON 列 -> Go Struct，兼容 []byte 与 string
func jsonScan(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dst)
}
