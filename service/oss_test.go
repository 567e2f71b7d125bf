package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipObjectName(t *testing.T) {
	assert.Equal(t, "projects/p1/scenes/s1/job-1.mp4", ClipObjectName("p1", "s1", "job-1"))
	assert.Equal(t, "projects/p1/scenes/s1/a_b.mp4", ClipObjectName("p1", "s1", "a/b"))
}

func TestSceneFromClipObject(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"projects/p1/scenes/s1/job-1.mp4", "s1", true},
		{"projects/p1/scenes/s1/frame.png", "", false},
		{"projects/p1/scenes/s1/.mp4", "", false},
		{"projects/p1/scenes/s1/nested/job-1.mp4", "", false},
		{"projects/p2/scenes/s1/job-1.mp4", "", false},
		{"projects/p1/scenes//job-1.mp4", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := sceneFromClipObject("p1", tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewestClips(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	objs := []minio.ObjectInfo{
		{Key: "projects/p1/scenes/s1/job-2.mp4", LastModified: t0.Add(time.Minute)},
		{Key: "projects/p1/scenes/s1/job-1.mp4", LastModified: t0},
		{Key: "projects/p1/scenes/s2/job-3.mp4", LastModified: t0},
		{Key: "projects/p1/scenes/s2/frame.png", LastModified: t0.Add(time.Hour)},
		{Key: "projects/p1/scenes/s3/b.mp4", LastModified: t0},
		{Key: "projects/p1/scenes/s3/a.mp4", LastModified: t0},
	}
	assert.Equal(t, map[string]string{
		"s1": "projects/p1/scenes/s1/job-2.mp4",
		"s2": "projects/p1/scenes/s2/job-3.mp4",
		"s3": "projects/p1/scenes/s3/b.mp4",
	}, newestClips("p1", objs))
}

func TestObjectStore_DeleteRemoteURLIsNoop(t *testing.T) {
	s := &ObjectStore{}
	assert.NoError(t, s.Delete(context.Background(), "https://worker/job-1.mp4"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "video/mp4", contentTypeFor("a/clip.MP4"))
	assert.Equal(t, "image/png", contentTypeFor("frame.png"))
	assert.Equal(t, "image/jpeg", contentTypeFor("ref.jpeg"))
	assert.Equal(t, "audio/wav", contentTypeFor("audio.wav"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("blob"))
}

func TestObjectStore_FetchRemoteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/clip.mp4" {
			_, _ = w.Write([]byte("remote"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := &ObjectStore{http: srv.Client()}
	data, err := s.Fetch(context.Background(), srv.URL+"/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), data)

	_, err = s.Fetch(context.Background(), srv.URL+"/missing.mp4")
	assert.Error(t, err)
}

func TestObjectStore_PresignRemoteURLPassthrough(t *testing.T) {
	s := &ObjectStore{}
	u, err := s.PresignURL(context.Background(), "https://worker/clip.mp4", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://worker/clip.mp4", u)
}
