package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"SceneChain-server/models"

	openai "github.com/sashabaranov/go-openai"
)

const (
	framePrompt = `You are reviewing one still frame from a generated video scene.
Expected scene description:
%s

Rate from 0 to 100 how well the frame matches the description.
Reply with JSON only: {"score": <number>, "analysis": "<one or two sentences>"}`

	dialoguePrompt = `Compare the expected dialogue with what was transcribed from the clip audio.
Expected: %q
Transcribed: %q

Rate from 0 to 100 how faithfully the transcript matches the expected dialogue.
Reply with JSON only: {"score": <number>, "analysis": "<one or two sentences>"}`
)

// VisionScorer 使用多模态模型给帧和台词打分
type VisionScorer struct {
	client *openai.Client
	model  string
}

func NewVisionScorer(apiKey, baseURL, model string) *VisionScorer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &VisionScorer{client: openai.NewClientWithConfig(cfg), model: model}
}

func (v *VisionScorer) ScoreFrame(ctx context.Context, frame []byte, expectedPrompt string) (models.SubScore, error) {
	dataURL := "data:" + http.DetectContentType(frame) + ";base64," + base64.StdEncoding.EncodeToString(frame)
	return v.score(ctx, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: fmt.Sprintf(framePrompt, expectedPrompt)},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailLow,
			}},
		},
	})
}

func (v *VisionScorer) CompareDialogue(ctx context.Context, expected, transcribed string) (models.SubScore, error) {
	return v.score(ctx, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf(dialoguePrompt, expected, transcribed),
	})
}

func (v *VisionScorer) score(ctx context.Context, msg openai.ChatCompletionMessage) (models.SubScore, error) {
	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    v.model,
		Messages: []openai.ChatCompletionMessage{msg},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return models.SubScore{}, fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.SubScore{}, fmt.Errorf("vision response has no choices")
	}
	return parseSubScore(resp.Choices[0].Message.Content)
}

// parseSubScore 解析 {"score","analysis"}，容忍 JSON 外的多余文本
func parseSubScore(content string) (models.SubScore, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return models.SubScore{}, fmt.Errorf("no JSON object in response: %q", content)
	}
	var out struct {
		Score    *float64 `json:"score"`
		Analysis string   `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return models.SubScore{}, fmt.Errorf("decode score failed: %w", err)
	}
	if out.Score == nil {
		return models.SubScore{}, fmt.Errorf("response missing score")
	}
	return models.SubScore{Score: *out.Score, Analysis: strings.TrimSpace(out.Analysis)}, nil
}
