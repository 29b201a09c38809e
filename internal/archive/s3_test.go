package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "memeflow/config"
	"memeflow/internal/model"
	"memeflow/logger"
)

func archiverConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Memeflow.Version = "test"
	cfg.Archive.S3.Bucket = "memeflow-runs"
	cfg.Archive.S3.Region = "us-east-1"
	cfg.Archive.S3.Compression = "snappy"
	return cfg
}

func testArchiver(t *testing.T, cfg *appconfig.Config, endpoint string) *Archiver {
	t.Helper()
	awsCfg := aws.Config{
		Region:      cfg.Archive.S3.Region,
		Credentials: credentials.NewStaticCredentialsProvider("test", "test", ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &Archiver{config: cfg, s3Client: client, log: logger.GetLogger()}
}

func TestUploadHonoursContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	a := testArchiver(t, archiverConfig(), server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := a.upload(ctx, "date=2026-01-01/hour=00/x.parquet", []byte("payload"))
	elapsed := time.Since(start)

	require.Error(t, err, "a hung endpoint must not block past the caller's deadline")
	assert.Less(t, elapsed, time.Second)
}

func TestGenerateS3KeyPartitionsByDateAndHour(t *testing.T) {
	cfg := archiverConfig()
	cfg.Archive.S3.Prefix = "memelist"
	a := &Archiver{config: cfg, log: logger.GetLogger()}

	result := &model.Result{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 8, 29, 14, 5, 0, 0, time.UTC),
	}

	key := a.generateS3Key(result)
	assert.True(t, strings.HasPrefix(key, "memelist/date=2026-08-29/hour=14/memelist_20260829140500_run-1"), key)
	assert.True(t, strings.HasSuffix(key, ".parquet"))
}
