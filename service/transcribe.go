package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"SceneChain-server/engine"

	openai "github.com/sashabaranov/go-openai"
)

// whisperTranscriber 每次评估用调用方提供的 key 新建，不缓存
type whisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewTranscriberFactory 返回按凭据构造转写器的工厂
func NewTranscriberFactory(baseURL, model string) engine.TranscriberFactory {
	return func(credential string) (engine.Transcriber, error) {
		if strings.TrimSpace(credential) == "" {
			return nil, fmt.Errorf("empty transcription credential")
		}
		cfg := openai.DefaultConfig(credential)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return &whisperTranscriber{client: openai.NewClientWithConfig(cfg), model: model}, nil
	}
}

func (w *whisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
