package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"SceneChain-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const clipExt = ".mp4"

// ObjectStore MinIO 上的片段/图片存储。稳定定位符即对象名
type ObjectStore struct {
	client *minio.Client
	bucket string
	http   *http.Client
}

func NewObjectStore(ctx context.Context, cfg config.MinIOConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化失败: %w", err)
	}
	s := &ObjectStore{client: client, bucket: cfg.Bucket, http: &http.Client{Timeout: 2 * time.Minute}}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	log.Println("[MinIO] 连接成功")
	return s, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		log.Printf("[MinIO] Bucket '%s' 已创建", s.bucket)
	}
	return nil
}

func scenePrefix(projectID string) string {
	return fmt.Sprintf("projects/%s/scenes/", projectID)
}

// ClipObjectName 每次生成一个对象，例如 projects/p1/scenes/s1/job-1.mp4
func ClipObjectName(projectID, sceneID, jobHandle string) string {
	return scenePrefix(projectID) + sceneID + "/" + strings.ReplaceAll(jobHandle, "/", "_") + clipExt
}

// sceneFromClipObject 从对象名解析 scene id
func sceneFromClipObject(projectID, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, scenePrefix(projectID))
	if !ok {
		return "", false
	}
	sceneID, file, ok := strings.Cut(rest, "/")
	if !ok || sceneID == "" || strings.Contains(file, "/") || !strings.HasSuffix(file, clipExt) || file == clipExt {
		return "", false
	}
	return sceneID, true
}

// newestClips 每个分镜只保留最新上传的片段
func newestClips(projectID string, objs []minio.ObjectInfo) map[string]string {
	res := make(map[string]string)
	latest := make(map[string]minio.ObjectInfo)
	for _, obj := range objs {
		sceneID, ok := sceneFromClipObject(projectID, obj.Key)
		if !ok {
			continue
		}
		prev, seen := latest[sceneID]
		if seen && (obj.LastModified.Before(prev.LastModified) ||
			(obj.LastModified.Equal(prev.LastModified) && obj.Key < prev.Key)) {
			continue
		}
		latest[sceneID] = obj
		res[sceneID] = obj.Key
	}
	return res
}

func (s *ObjectStore) Save(ctx context.Context, projectID, sceneID, jobHandle string, clip []byte) (string, error) {
	objectName := ClipObjectName(projectID, sceneID, jobHandle)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(clip), int64(len(clip)), minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}
	log.Printf("[MinIO] 文件已上传: %s", objectName)
	return objectName, nil
}

func (s *ObjectStore) List(ctx context.Context, projectID string) (map[string]string, error) {
	var objs []minio.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    scenePrefix(projectID),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("列出对象失败: %w", obj.Err)
		}
		objs = append(objs, obj)
	}
	return newestClips(projectID, objs), nil
}

// Delete 删除已持久化的片段；临时地址不归我们管
func (s *ObjectStore) Delete(ctx context.Context, locator string) error {
	if isRemoteURL(locator) {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, locator, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象失败 %s: %w", locator, err)
	}
	log.Printf("[MinIO] 文件已删除: %s", locator)
	return nil
}

// Fetch 对象名从 MinIO 读取；http(s) 地址直接下载（片段未持久化时的临时地址）
func (s *ObjectStore) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if isRemoteURL(locator) {
		return httpFetch(ctx, s.http, locator)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取对象失败: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象失败 %s: %w", locator, err)
	}
	return data, nil
}

// PresignURL 生成可直接播放的地址；临时地址原样返回
func (s *ObjectStore) PresignURL(ctx context.Context, locator string, expiry time.Duration) (string, error) {
	if isRemoteURL(locator) {
		return locator, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, locator, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	return u.String(), nil
}

func isRemoteURL(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

func httpFetch(ctx context.Context, client *http.Client, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// 根据文件扩展名确定 ContentType
func contentTypeFor(objectName string) string {
	switch strings.ToLower(filepath.Ext(objectName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	}
	return "application/octet-stream"
}
