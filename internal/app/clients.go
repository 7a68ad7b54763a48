package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/syllabridge-backend/internal/data/db"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/extract"
	"github.com/yungbote/syllabridge-backend/internal/platform/blob"
	"github.com/yungbote/syllabridge-backend/internal/platform/gcp"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
	"github.com/yungbote/syllabridge-backend/internal/platform/openai"
	"github.com/yungbote/syllabridge-backend/internal/platform/redisclient"
	"github.com/yungbote/syllabridge-backend/internal/realtime/bus"
)

// Clients are the external connections. Optional ones are nil when their
// configuration is absent.
type Clients struct {
	DB     *gorm.DB
	Redis  *goredis.Client
	Blobs  blob.Store
	OCR    gcp.OCR
	Parser extract.Parser
	Events bus.Publisher
	// Bus is set when Redis is configured; it backs the SSE endpoint.
	Bus bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	// Database
	theDB, err := db.Open(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		closeDB(theDB)
		return nil, err
	}
	c.DB = theDB

	// Redis
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
	}

	// Blob storage
	store, err := blob.New(ctx, log, cfg.Blob)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	c.Blobs = store

	// DocumentAI OCR for PDFs and images
	if cfg.OCR.ProjectID != "" && cfg.OCR.ProcessorID != "" {
		ocr, err := gcp.NewDocument(ctx, log, cfg.OCR)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init document ai: %w", err)
		}
		c.OCR = ocr
	} else {
		log.Warn("DocumentAI not configured; PDF and image uploads will fail extraction")
	}

	// AI parser, with the rule-based parser as fallback
	parser, err := wireParser(log, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Parser = parser

	// Job events
	var targets []bus.Publisher
	if c.Redis != nil {
		rb, err := bus.NewRedisBus(log, c.Redis)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		c.Bus = rb
		targets = append(targets, rb)
	}
	if cfg.AMQPURL != "" {
		pub, err := bus.NewAMQPPublisher(log, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init amqp: %w", err)
		}
		targets = append(targets, pub)
	}
	c.Events = bus.NewFanout(log, targets...)
	return c, nil
}

func wireParser(log *logger.Logger, cfg Config) (extract.Parser, error) {
	oc, err := openai.NewClient(log, openai.ConfigFromEnv())
	if errors.Is(err, openai.ErrAPIKeyNotSet) {
		log.Warn("OPENAI_API_KEY not set; using the heuristic syllabus parser")
		return extract.NewHeuristicParser(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("init openai: %w", err)
	}
	p, err := extract.NewOpenAIParser(log, oc, openai.NewTokenCounter(log), extract.OpenAIParserConfig{
		MaxInputTokens: cfg.OpenAIMaxInputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai parser: %w", err)
	}
	return p, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Events != nil {
		_ = c.Events.Close()
	}
	if c.OCR != nil {
		_ = c.OCR.Close()
	}
	if closer, ok := c.Blobs.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		closeDB(c.DB)
	}
}

func closeDB(theDB *gorm.DB) {
	if sqlDB, err := theDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func logMode() string {
	if m := strings.TrimSpace(os.Getenv("LOG_MODE")); m != "" {
		return m
	}
	return "development"
}
