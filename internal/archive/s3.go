package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "memeflow/config"
	"memeflow/internal/model"
	"memeflow/logger"
)

// ParquetRecord is the flattened per-token row written to the archive.
// Unranked items are archived too, with rank 0.
type ParquetRecord struct {
	RunID        string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ChainID      string  `parquet:"name=chain_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenAddress string  `parquet:"name=token_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol       string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sources      string  `parquet:"name=sources, type=BYTE_ARRAY, convertedtype=UTF8"`
	MarketCap    float64 `parquet:"name=market_cap, type=DOUBLE"`
	HasMarketCap bool    `parquet:"name=has_market_cap, type=BOOLEAN"`
	Rank         int32   `parquet:"name=rank, type=INT32"`
	Error        string  `parquet:"name=error, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp    int64   `parquet:"name=timestamp, type=INT64"`
}

// Archiver writes each pipeline run to S3 as a parquet object,
// partitioned by date and hour.
type Archiver struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log

	// Metrics
	runsWritten int64
	rowsWritten int64
	errorsCount int64
}

func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Archive.S3.Region),
	}
	if cfg.Archive.S3.AccessKeyID != "" && cfg.Archive.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Archive.S3.AccessKeyID,
				cfg.Archive.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Archive.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Archive.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Archive.S3.PathStyle
	})

	log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket":     cfg.Archive.S3.Bucket,
		"region":     cfg.Archive.S3.Region,
		"endpoint":   cfg.Archive.S3.Endpoint,
		"path_style": cfg.Archive.S3.PathStyle,
	}).Info("archiver initialized")

	return &Archiver{
		config:   cfg,
		s3Client: s3Client,
		log:      log,
	}, nil
}

// ArchiveRun writes one run to S3. Both ranked and unranked items go
// into the same object so excluded tokens stay auditable.
func (a *Archiver) ArchiveRun(ctx context.Context, result *model.Result) error {
	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"run_id": result.RunID,
		"ranked": len(result.Items),
		"audit":  len(result.Unranked),
	})

	rows := len(result.Items) + len(result.Unranked)
	if rows == 0 {
		log.Debug("run produced no items, skipping archive")
		return nil
	}

	data, err := a.createParquetFile(result)
	if err != nil {
		atomic.AddInt64(&a.errorsCount, 1)
		return fmt.Errorf("create parquet file: %w", err)
	}

	key := a.generateS3Key(result)
	if err := a.upload(ctx, key, data); err != nil {
		atomic.AddInt64(&a.errorsCount, 1)
		return err
	}

	atomic.AddInt64(&a.runsWritten, 1)
	atomic.AddInt64(&a.rowsWritten, int64(rows))
	logger.IncrementArchiveWrite(int64(len(data)))
	logger.LogDataFlowEntry(log, "pipeline", "s3_archive", rows, "rows")
	log.WithFields(logger.Fields{
		"key":        key,
		"size_bytes": len(data),
	}).Info("run archived")
	return nil
}

func (a *Archiver) createParquetFile(result *model.Result) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.config.Archive.S3.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	ts := result.StartedAt.UnixMilli()
	writeItem := func(item model.Item) error {
		record := ParquetRecord{
			RunID:        result.RunID,
			ChainID:      item.ChainID,
			TokenAddress: item.TokenAddress,
			Symbol:       item.Symbol,
			Sources:      joinSources(item.Sources),
			HasMarketCap: item.MarketCap != nil,
			Rank:         int32(item.Rank),
			Error:        item.Error,
			Timestamp:    ts,
		}
		if item.MarketCap != nil {
			record.MarketCap = *item.MarketCap
		}
		return pw.Write(record)
	}

	for _, item := range result.Items {
		if err := writeItem(item); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	for _, item := range result.Unranked {
		if err := writeItem(item); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (a *Archiver) generateS3Key(result *model.Result) string {
	t := result.StartedAt.UTC()
	parts := []string{}
	if prefix := a.config.Archive.S3.Prefix; prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts,
		fmt.Sprintf("date=%s", t.Format("2006-01-02")),
		fmt.Sprintf("hour=%02d", t.Hour()),
		fmt.Sprintf("memelist_%s_%s.parquet", t.Format("20060102150405"), result.RunID),
	)
	return filepath.ToSlash(filepath.Join(parts...))
}

func (a *Archiver) upload(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Archive.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"compression":      a.config.Archive.S3.Compression,
			"memeflow-version": a.config.Memeflow.Version,
		},
	}

	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.config.Archive.S3.Bucket, err)
	}
	return nil
}

func joinSources(sources []string) string {
	switch len(sources) {
	case 0:
		return ""
	case 1:
		return sources[0]
	}
	buf := bytes.NewBufferString(sources[0])
	for _, s := range sources[1:] {
		buf.WriteByte(',')
		buf.WriteString(s)
	}
	return buf.String()
}

// Metrics returns cumulative archiver counters.
func (a *Archiver) Metrics() (runs, rows, errors int64) {
	return atomic.LoadInt64(&a.runsWritten),
		atomic.LoadInt64(&a.rowsWritten),
		atomic.LoadInt64(&a.errorsCount)
}
