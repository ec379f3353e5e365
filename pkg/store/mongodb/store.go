package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/de-tools/cloud-sentinel/pkg/models/store"
)

const (
	findingsCollection     = "findings"
	reportsCollection      = "scan_reports"
	remediationsCollection = "remediation_records"
)

type Settings struct {
	URI      string
	Database string
	// ConnectTimeout bounds connect, ping and index creation (default: 5s)
	ConnectTimeout time.Duration
}

// Store is the document backend. Findings are upserted by their id field.
type Store struct {
	client       *mongo.Client
	findings     *mongo.Collection
	reports      *mongo.Collection
	remediations *mongo.Collection
}

// NewStore connects, verifies the server is reachable and ensures indexes.
func NewStore(ctx context.Context, settings Settings) (*Store, error) {
	if settings.URI == "" {
		return nil, fmt.Errorf("mongodb uri is empty")
	}
	if settings.Database == "" {
		settings.Database = "sentinel"
	}
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, settings.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(settings.URI).
		SetServerSelectionTimeout(settings.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(settings.Database)
	s := &Store{
		client:       client,
		findings:     db.Collection(findingsCollection),
		reports:      db.Collection(reportsCollection),
		remediations: db.Collection(remediationsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.findings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "provider", Value: 1}}},
		{Keys: bson.D{{Key: "severity", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create finding indexes: %w", err)
	}

	_, err = s.reports.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "scan_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create report indexes: %w", err)
	}

	_, err = s.remediations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "finding_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create remediation indexes: %w", err)
	}
	return nil
}

func (s *Store) Name() string {
	return "mongodb"
}

func (s *Store) GetFinding(ctx context.Context, id string) (*store.FindingRecord, error) {
	var rec store.FindingRecord
	err := s.findings.FindOne(ctx, bson.M{"id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get finding %s: %w", id, err)
	}
	normalize(&rec)
	return &rec, nil
}

func (s *Store) PutFinding(ctx context.Context, rec store.FindingRecord) error {
	_, err := s.findings.ReplaceOne(ctx, bson.M{"id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert finding %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) QueryFindings(ctx context.Context, filter store.FindingFilter, limit int) ([]store.FindingRecord, error) {
	query := bson.M{}
	if filter.Provider != "" {
		query["provider"] = filter.Provider
	}
	if filter.Severity != "" {
		query["severity"] = filter.Severity
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.ResourceKind != "" {
		query["resource_kind"] = filter.ResourceKind
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.findings.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]store.FindingRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	for i := range records {
		normalize(&records[i])
	}
	return records, nil
}

func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (store.CleanupResult, error) {
	var result store.CleanupResult

	res, err := s.findings.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return result, fmt.Errorf("cleanup findings: %w", err)
	}
	result.Findings = res.DeletedCount

	res, err = s.reports.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return result, fmt.Errorf("cleanup reports: %w", err)
	}
	result.Reports = res.DeletedCount

	res, err = s.remediations.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return result, fmt.Errorf("cleanup remediation records: %w", err)
	}
	result.Remediations = res.DeletedCount

	return result, nil
}

func (s *Store) InsertReport(ctx context.Context, rec store.ReportRecord) error {
	if _, err := s.reports.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert report %s: %w", rec.ScanID, err)
	}
	return nil
}

func (s *Store) InsertRemediation(ctx context.Context, rec store.RemediationRecord) error {
	if _, err := s.remediations.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert remediation record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) ListRemediations(ctx context.Context, findingID string) ([]store.RemediationRecord, error) {
	query := bson.M{}
	if findingID != "" {
		query["finding_id"] = findingID
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.remediations.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list remediation records: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]store.RemediationRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode remediation records: %w", err)
	}
	for i := range records {
		records[i].CreatedAt = records[i].CreatedAt.UTC()
	}
	return records, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func normalize(rec *store.FindingRecord) {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if len(rec.Attributes) == 0 {
		rec.Attributes = nil
	}
}
