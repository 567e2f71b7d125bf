package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FFmpeg 通过 ffmpeg 命令抽帧/抽音轨
type FFmpeg struct {
	Path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// FrameAt 抽取 at 处的一帧 PNG
func (f *FFmpeg) FrameAt(ctx context.Context, clip []byte, at time.Duration) ([]byte, error) {
	return f.withClip(ctx, clip, "frame.png", func(in, out string) []string {
		return []string{"-y",
			"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
			"-i", in,
			"-frames:v", "1",
			"-f", "image2",
			out,
		}
	})
}

// LastFrame 从末尾一秒开始解码，持续覆盖输出，留下最后一帧
func (f *FFmpeg) LastFrame(ctx context.Context, clip []byte) ([]byte, error) {
	return f.withClip(ctx, clip, "last.png", func(in, out string) []string {
		return []string{"-y",
			"-sseof", "-1",
			"-i", in,
			"-update", "1",
			"-f", "image2",
			out,
		}
	})
}

// ExtractAudio 导出 16k 单声道 wav 供转写
func (f *FFmpeg) ExtractAudio(ctx context.Context, clip []byte) ([]byte, error) {
	return f.withClip(ctx, clip, "audio.wav", func(in, out string) []string {
		return []string{"-y",
			"-i", in,
			"-vn",
			"-ac", "1",
			"-ar", "16000",
			"-c:a", "pcm_s16le",
			out,
		}
	})
}

// withClip 把片段写入临时目录，执行 ffmpeg 并读回输出文件
func (f *FFmpeg) withClip(ctx context.Context, clip []byte, outName string, args func(in, out string) []string) ([]byte, error) {
	if len(clip) == 0 {
		return nil, fmt.Errorf("empty clip")
	}
	dir, err := os.MkdirTemp("", "scenechain-ffmpeg-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.mp4")
	if err := os.WriteFile(in, clip, 0o644); err != nil {
		return nil, err
	}
	out := filepath.Join(dir, outName)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path, args(in, out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ffmpeg produced empty %s", outName)
	}
	return data, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
