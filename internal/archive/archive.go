// Package archive persists raw crew outputs to MongoDB so the
// structured JSON survives even when HTML rendering changes. The
// archive is optional; a disabled Archive accepts writes and drops
// them.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/types"
)

// document is the archived form of a crew output.
type document struct {
	RequestID  string         `bson:"request_id"`
	CrewKey    string         `bson:"crew_key"`
	Title      string         `bson:"title"`
	Summary    string         `bson:"summary"`
	Data       map[string]any `bson:"data"`
	Usage      bson.M         `bson:"usage"`
	StartedAt  time.Time      `bson:"started_at"`
	FinishedAt time.Time      `bson:"finished_at"`
	ArchivedAt time.Time      `bson:"archived_at"`
}

// Archive writes crew outputs to a MongoDB collection.
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// New connects to MongoDB per cfg. When cfg.Enabled is false it
// returns a disabled Archive whose Save is a no-op.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (*Archive, error) {
	log := logger.With(zap.String("component", "archive"))
	if !cfg.Enabled {
		log.Info("output archive disabled")
		return &Archive{logger: log}, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	log.Info("output archive connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return &Archive{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     log,
	}, nil
}

// Enabled reports whether writes actually persist.
func (a *Archive) Enabled() bool {
	return a != nil && a.collection != nil
}

// Save archives one crew output. Disabled or nil archives accept the
// write and discard it.
func (a *Archive) Save(ctx context.Context, out *types.CrewOutput) error {
	if !a.Enabled() {
		return nil
	}

	doc := document{
		RequestID: out.RequestID,
		CrewKey:   out.CrewKey,
		Title:     out.Title,
		Summary:   out.Summary,
		Data:      out.Data,
		Usage: bson.M{
			"prompt_tokens":     out.Usage.PromptTokens,
			"completion_tokens": out.Usage.CompletionTokens,
			"total_tokens":      out.Usage.TotalTokens,
		},
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		ArchivedAt: time.Now().UTC(),
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("archive crew output: %w", err)
	}
	a.logger.Debug("crew output archived",
		zap.String("request_id", out.RequestID),
		zap.String("crew", out.CrewKey),
	)
	return nil
}

// ListByCrew returns the most recent archived outputs for a crew,
// newest first.
func (a *Archive) ListByCrew(ctx context.Context, crewKey string, limit int) ([]map[string]any, error) {
	if !a.Enabled() {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "archived_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := a.collection.Find(ctx, bson.M{"crew_key": crewKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer cursor.Close(ctx)

	var results []map[string]any
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode archive results: %w", err)
	}
	return results, nil
}

// Close disconnects from MongoDB.
func (a *Archive) Close(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	return a.client.Disconnect(ctx)
}
