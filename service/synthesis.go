package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"SceneChain-server/engine"

	"github.com/google/uuid"
)

// SynthesisClient 视频合成 Worker 的 HTTP 客户端
type SynthesisClient struct {
	Endpoint string
	HTTP     *http.Client
}

func NewSynthesisClient(endpoint string) *SynthesisClient {
	return &SynthesisClient{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		HTTP:     &http.Client{Timeout: 60 * time.Second},
	}
}

type seedImage struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type generateParams struct {
	Prompt          string      `json:"prompt"`
	AspectRatio     string      `json:"aspect_ratio"`
	Model           string      `json:"model"`
	Resolution      string      `json:"resolution"`
	Loop            bool        `json:"loop"`
	DurationSeconds float64     `json:"duration_seconds"`
	ReferenceImages []seedImage `json:"reference_images,omitempty"`
	StartFrame      *seedImage  `json:"start_frame,omitempty"`
}

type generateRequest struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	SceneID    string         `json:"scene_id"`
	Type       string         `json:"type"`
	Parameters generateParams `json:"parameters"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Result struct {
		ResourceUrl string `json:"resource_url"`
	} `json:"result"`
}

func encodeSeedImage(img engine.Image) seedImage {
	mime := img.MimeType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return seedImage{MimeType: mime, Data: base64.StdEncoding.EncodeToString(img.Data)}
}

// Submit 发送 POST /v1/generate，返回 job id
func (c *SynthesisClient) Submit(ctx context.Context, req engine.SynthesisRequest) (string, error) {
	params := generateParams{
		Prompt:          req.Prompt,
		AspectRatio:     req.Settings.AspectRatio,
		Model:           req.Settings.Model,
		Resolution:      req.Settings.Resolution,
		Loop:            req.Settings.Loop,
		DurationSeconds: req.Duration.Seconds(),
	}
	switch req.Seed.Kind {
	case engine.SeedReferenceImages:
		for _, img := range req.Seed.ReferenceImages {
			params.ReferenceImages = append(params.ReferenceImages, encodeSeedImage(img))
		}
	case engine.SeedStartFrame:
		frame := encodeSeedImage(*req.Seed.StartFrame)
		params.StartFrame = &frame
	}

	jsonBody, err := json.Marshal(generateRequest{
		ID:         uuid.NewString(),
		ProjectID:  req.ProjectID,
		SceneID:    req.SceneID,
		Type:       "generate_video",
		Parameters: params,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}

	fullURL := c.Endpoint + "/v1/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	log.Printf("[Synthesis] POST %s scene=%s seed=%s", fullURL, req.SceneID, req.Seed.Kind)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("worker status code: %d", resp.StatusCode)
	}

	var respData map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	// 优先返回根节点的 id
	if id, ok := respData["id"].(string); ok && id != "" {
		return id, nil
	}
	if jobID, ok := respData["job_id"].(string); ok && jobID != "" {
		return jobID, nil
	}
	return "", fmt.Errorf("response missing 'id'")
}

// Poll GET /v1/jobs/{job_id}。完成时下载片段；下载失败只返回临时地址
func (c *SynthesisClient) Poll(ctx context.Context, jobID string) (engine.JobStatus, error) {
	jobURL := fmt.Sprintf("%s/v1/jobs/%s", c.Endpoint, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
	if err != nil {
		return engine.JobStatus{}, fmt.Errorf("create request failed: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return engine.JobStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.JobStatus{}, fmt.Errorf("worker status code: %d", resp.StatusCode)
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return engine.JobStatus{}, fmt.Errorf("read body failed: %w", err)
	}
	var job jobResponse
	if err := json.Unmarshal(bodyBytes, &job); err != nil {
		bodyStr := string(bodyBytes)
		if len(bodyStr) > 2000 {
			bodyStr = bodyStr[:2000] + "..."
		}
		return engine.JobStatus{}, fmt.Errorf("decode job failed: %w, body: %s", err, bodyStr)
	}

	switch strings.ToLower(job.Status) {
	case "finished", "success", "completed", "succeeded":
		status := engine.JobStatus{Done: true, ClipURL: job.Result.ResourceUrl}
		if status.ClipURL == "" {
			status.Error = "job finished without resource_url"
			return status, nil
		}
		clip, err := c.download(ctx, status.ClipURL)
		if err != nil {
			log.Printf("[Synthesis] 下载片段失败 job=%s: %v", jobID, err)
			return status, nil
		}
		status.Clip = clip
		return status, nil
	case "failed", "error", "cancelled":
		msg := job.Error
		if msg == "" {
			msg = "worker reported " + job.Status
		}
		return engine.JobStatus{Done: true, Error: msg}, nil
	}
	// 其他状态继续轮询
	return engine.JobStatus{}, nil
}

// Cancel 通知 worker 删除 job
func (c *SynthesisClient) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("empty job id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.Endpoint+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return fmt.Errorf("create delete request failed: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("worker delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		var respData map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&respData)
		return fmt.Errorf("worker delete status: %d, body: %+v", resp.StatusCode, respData)
	}
	return nil
}

func (c *SynthesisClient) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
