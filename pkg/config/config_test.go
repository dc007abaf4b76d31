package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("test_app_key"))

func TestGetFFmpegLogPath(t *testing.T) {
	AppConfig.DataDir = "/tmp"
	expectedLogPath := filepath.Join("/tmp", "ffmpeg_log_"+time.Now().Format("2006-01-02")+".txt")
	assert.Equal(t, expectedLogPath, GetFFmpegLogPath())
}

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_KEY", testKey)
	t.Setenv("DATA_DIR", "/srv/lapse")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/lapse", cfg.DataDir)
	assert.Equal(t, filepath.Join("/srv/lapse", "media"), cfg.MediaRoot)
	assert.Equal(t, filepath.Join("/srv/lapse", "camerapics"), cfg.IndexDir)
	assert.Equal(t, filepath.Join("/srv/lapse", "exports"), cfg.ExportDir)
	assert.Equal(t, filepath.Join("/srv/lapse", "uploads"), cfg.UploadDir)
	assert.Equal(t, filepath.Join("/srv/lapse", "media", "music"), cfg.MusicDir)
	assert.Equal(t, "local", cfg.StorageBackend)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.True(t, cfg.KeepFailedArtifacts)
	assert.Equal(t, "deflate", cfg.ArchiveCompression)
	assert.Equal(t, 7*24*time.Hour, cfg.PresignExpiry())
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_KEY", testKey)
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("KEEP_FAILED_ARTIFACTS", "false")
	t.Setenv("ARCHIVE_COMPRESSION", "ZSTD")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "camera-pictures")
	t.Setenv("PRESIGN_EXPIRY_HOURS", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.BatchSize)
	assert.False(t, cfg.KeepFailedArtifacts)
	assert.Equal(t, "zstd", cfg.ArchiveCompression)
	assert.Equal(t, "s3", cfg.StorageBackend)
	assert.Equal(t, "camera-pictures", cfg.S3Bucket)
	assert.Equal(t, 2*time.Hour, cfg.PresignExpiry())
}

func TestLoadFileThenEnv(t *testing.T) {
	os.Clearenv()
	dir := t.TempDir()
	path := filepath.Join(dir, "lapse.toml")
	content := `data_dir = "/from/file"
batch_size = 80
listen_addr = ":9000"
app_key = "` + testKey + `"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("LISTEN_ADDR", ":7000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.DataDir)
	assert.Equal(t, 80, cfg.BatchSize)
	assert.Equal(t, ":7000", cfg.ListenAddr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing app key":   {},
		"bad app key":       {"APP_KEY": "not base64!"},
		"zero batch":        {"APP_KEY": testKey, "BATCH_SIZE": "0"},
		"s3 without bucket": {"APP_KEY": testKey, "STORAGE_BACKEND": "s3"},
		"unknown backend":   {"APP_KEY": testKey, "STORAGE_BACKEND": "ftp"},
		"postgres no url":   {"APP_KEY": testKey, "STORE_DRIVER": "postgres"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
