package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis  RedisConfig `yaml:"redis"`
	Worker struct {
		// 视频合成服务地址
		Addr string `yaml:"addr"`
	} `yaml:"worker"`
	MinIO         MinIOConfig         `yaml:"minio"`
	Vision        VisionConfig        `yaml:"vision"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Generation    GenerationConfig    `yaml:"generation"`
	Queue         struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"queue"`
	FFmpeg struct {
		Path string `yaml:"path"`
	} `yaml:"ffmpeg"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// TranscriptionConfig 凭证由调用方在评估请求中提供
type TranscriptionConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GenerationConfig 系统级默认值，项目未设置时使用
type GenerationConfig struct {
	AspectRatio      string        `yaml:"aspect_ratio"`
	Model            string        `yaml:"model"`
	Resolution       string        `yaml:"resolution"`
	ClipSeconds      float64       `yaml:"clip_seconds"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollTimeout      time.Duration `yaml:"poll_timeout"`
	ContinuityMargin time.Duration `yaml:"continuity_margin"`
}

// Load 读取并解析配置文件
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("配置文件读取失败: %w", err)
	}
	defer f.Close()
	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("配置文件解析失败: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = "scenes"
	}
	if c.Vision.Model == "" {
		c.Vision.Model = "gpt-4o-mini"
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "whisper-1"
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 5
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = "ffmpeg"
	}
	g := &c.Generation
	if g.PollInterval <= 0 {
		g.PollInterval = 5 * time.Second
	}
	if g.PollTimeout <= 0 {
		g.PollTimeout = 20 * time.Minute
	}
	if g.ContinuityMargin <= 0 {
		g.ContinuityMargin = 100 * time.Millisecond
	}
}
