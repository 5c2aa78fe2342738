package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Unwritable file path",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: filepath.Join(t.TempDir(), "missing", "dir", "log.json"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videosync.log")
	logger, err := NewLogger(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestWithOwnerAndVideo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	logger.WithOwnerID("user-1").WithVideoID("video-9").Info("selected")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "user-1", entry["owner_id"])
	assert.Equal(t, "video-9", entry["video_id"])
	assert.Equal(t, "selected", entry["message"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.WithField("key1", "value1").WithField("key2", 123).WithComponent("library").WithJobID("job-1").WithRequestID("req-1").Info("fields")

	out := buf.String()
	for _, want := range []string{`"key1":"value1"`, `"key2":123`, `"component":"library"`, `"job_id":"job-1"`, `"request_id":"req-1"`} {
		assert.Contains(t, out, want)
	}
}

func TestLogStoreOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	logger.LogStoreOperation("insert", "user-1", 5*time.Millisecond, nil)
	logger.LogStoreOperation("update", "user-1", 5*time.Millisecond, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"debug"`)
	assert.Contains(t, lines[1], `"level":"error"`)
	assert.Contains(t, lines[1], `"error":"boom"`)
}

func TestLogFeedEventAndHTTP(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	logger.LogFeedEvent("publish", "insert", "exercise_videos", "video-1")
	logger.LogHTTPRequest("GET", "/api/v1/videos", "192.168.1.1", 200, 100*time.Millisecond)
	logger.LogStorageOperation("upload", "videos", "u/v.mp4", 1024, time.Second, nil)
	logger.LogJobEvent("job-1", "consumed", "ok", map[string]interface{}{"video_id": "v1"})

	out := buf.String()
	assert.Contains(t, out, `"direction":"publish"`)
	assert.Contains(t, out, `"status_code":200`)
	assert.Contains(t, out, `"bucket":"videos"`)
	assert.Contains(t, out, `"event":"consumed"`)
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("nothing happens")
	logger.WithVideoID("v").Info("still nothing")
}

func BenchmarkLogWithFields(b *testing.B) {
	logger := Nop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithField("key1", "value1").WithField("key2", 123).Info("benchmark message")
	}
}
