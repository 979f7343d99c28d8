package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"concordia/internal/records/models"
	"concordia/internal/sentinel"
)

// Collection names. One collection per record type, every query tenant-scoped.
const (
	collActivities  = "processing_activities"
	collAssessments = "impact_assessments"
	collTasks       = "compliance_tasks"
	collReports     = "audit_reports"
)

// MongoGateway implements Gateway against MongoDB.
type MongoGateway struct {
	db *mongo.Database
}

// NewMongoGateway wraps the given database handle.
func NewMongoGateway(db *mongo.Database) *MongoGateway {
	return &MongoGateway{db: db}
}

func (g *MongoGateway) GetActivity(ctx context.Context, tenantID, id string) (*models.ProcessingActivity, error) {
	var a models.ProcessingActivity
	err := g.db.Collection(collActivities).
		FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).
		Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return &a, nil
}

func (g *MongoGateway) ListActivities(ctx context.Context, tenantID string, f ActivityFilter) ([]*models.ProcessingActivity, error) {
	filter := activityQuery(tenantID, f)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cursor, err := g.db.Collection(collActivities).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	var out []*models.ProcessingActivity
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return out, nil
}

func (g *MongoGateway) InsertActivity(ctx context.Context, activity *models.ProcessingActivity) error {
	if _, err := g.db.Collection(collActivities).InsertOne(ctx, activity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (g *MongoGateway) UpdateActivity(ctx context.Context, tenantID, id string, upd ActivityUpdate) error {
	set := bson.M{}
	setIf(set, "name", upd.Name)
	setIf(set, "purpose", upd.Purpose)
	setIf(set, "risk_level", upd.RiskLevel)
	setIf(set, "status", upd.Status)
	setIf(set, "sensitive_data", upd.SensitiveData)
	setIf(set, "international_transfers", upd.InternationalTransfers)
	setIf(set, "legal_basis", upd.LegalBasis)
	setIf(set, "data_categories", upd.DataCategories)
	setIf(set, "recipients", upd.Recipients)
	setIf(set, "data_volume", upd.DataVolume)
	setIf(set, "previous_risk_level", upd.PreviousRiskLevel)
	setIf(set, "risk_adjusted_at", upd.RiskAdjustedAt)
	return g.apply(ctx, collActivities, tenantID, id, set)
}

func (g *MongoGateway) CountActivities(ctx context.Context, tenantID string, f ActivityFilter) (int64, error) {
	n, err := g.db.Collection(collActivities).CountDocuments(ctx, activityQuery(tenantID, f))
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

func (g *MongoGateway) GetAssessment(ctx context.Context, tenantID, id string) (*models.ImpactAssessment, error) {
	var a models.ImpactAssessment
	err := g.db.Collection(collAssessments).
		FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).
		Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return &a, nil
}

func (g *MongoGateway) ListAssessments(ctx context.Context, tenantID string, f AssessmentFilter) ([]*models.ImpactAssessment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cursor, err := g.db.Collection(collAssessments).Find(ctx, assessmentQuery(tenantID, f), opts)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	var out []*models.ImpactAssessment
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode assessments: %w", err)
	}
	return out, nil
}

func (g *MongoGateway) InsertAssessment(ctx context.Context, assessment *models.ImpactAssessment) error {
	if _, err := g.db.Collection(collAssessments).InsertOne(ctx, assessment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (g *MongoGateway) UpdateAssessment(ctx context.Context, tenantID, id string, upd AssessmentUpdate) error {
	set := bson.M{}
	setIf(set, "activity_id", upd.ActivityID)
	setIf(set, "status", upd.Status)
	setIf(set, "content", upd.Content)
	setIf(set, "needs_review", upd.NeedsReview)
	setIf(set, "review_reason", upd.ReviewReason)
	return g.apply(ctx, collAssessments, tenantID, id, set)
}

func (g *MongoGateway) CountAssessments(ctx context.Context, tenantID string, f AssessmentFilter) (int64, error) {
	n, err := g.db.Collection(collAssessments).CountDocuments(ctx, assessmentQuery(tenantID, f))
	if err != nil {
		return 0, fmt.Errorf("count assessments: %w", err)
	}
	return n, nil
}

func (g *MongoGateway) GetTask(ctx context.Context, tenantID, id string) (*models.ComplianceTask, error) {
	var t models.ComplianceTask
	err := g.db.Collection(collTasks).
		FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).
		Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (g *MongoGateway) ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]*models.ComplianceTask, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cursor, err := g.db.Collection(collTasks).Find(ctx, taskQuery(tenantID, f), opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var out []*models.ComplianceTask
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return out, nil
}

func (g *MongoGateway) InsertTask(ctx context.Context, task *models.ComplianceTask) error {
	if _, err := g.db.Collection(collTasks).InsertOne(ctx, task); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (g *MongoGateway) UpdateTask(ctx context.Context, tenantID, id string, upd TaskUpdate) error {
	set := bson.M{}
	setIf(set, "status", upd.Status)
	setIf(set, "description", upd.Description)
	setIf(set, "reason", upd.Reason)
	return g.apply(ctx, collTasks, tenantID, id, set)
}

func (g *MongoGateway) CountTasks(ctx context.Context, tenantID string, f TaskFilter) (int64, error) {
	n, err := g.db.Collection(collTasks).CountDocuments(ctx, taskQuery(tenantID, f))
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (g *MongoGateway) ListReports(ctx context.Context, tenantID string, f ReportFilter) ([]*models.ReportRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cursor, err := g.db.Collection(collReports).Find(ctx, reportQuery(tenantID, f), opts)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	var out []*models.ReportRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return out, nil
}

func (g *MongoGateway) InsertReport(ctx context.Context, report *models.ReportRecord) error {
	if _, err := g.db.Collection(collReports).InsertOne(ctx, report); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (g *MongoGateway) CountReports(ctx context.Context, tenantID string, f ReportFilter) (int64, error) {
	n, err := g.db.Collection(collReports).CountDocuments(ctx, reportQuery(tenantID, f))
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// apply runs a tenant-scoped partial update. Empty updates are a no-op so
// callers can build updates unconditionally. Any real update also refreshes
// updated_at.
func (g *MongoGateway) apply(ctx context.Context, coll, tenantID, id string, set bson.M) error {
	if len(set) == 0 {
		return nil
	}
	set["updated_at"] = time.Now().UTC()
	res, err := g.db.Collection(coll).UpdateOne(ctx,
		bson.M{"_id": id, "tenant_id": tenantID},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", coll, err)
	}
	if res.MatchedCount == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func activityQuery(tenantID string, f ActivityFilter) bson.M {
	q := bson.M{"tenant_id": tenantID}
	switch {
	case f.Status != nil && f.StatusNot != nil:
		q["$and"] = bson.A{
			bson.M{"status": *f.Status},
			bson.M{"status": bson.M{"$ne": *f.StatusNot}},
		}
	case f.Status != nil:
		q["status"] = *f.Status
	case f.StatusNot != nil:
		q["status"] = bson.M{"$ne": *f.StatusNot}
	}
	if len(f.RiskIn) > 0 {
		q["risk_level"] = bson.M{"$in": f.RiskIn}
	}
	if f.NameContains != "" {
		q["name"] = bson.M{"$regex": primitive.Regex{
			Pattern: regexp.QuoteMeta(strings.TrimSpace(f.NameContains)),
			Options: "i",
		}}
	}
	if f.CreatedBefore != nil {
		q["created_at"] = bson.M{"$lt": *f.CreatedBefore}
	}
	return q
}

func assessmentQuery(tenantID string, f AssessmentFilter) bson.M {
	q := bson.M{"tenant_id": tenantID}
	if f.ActivityID != nil {
		if *f.ActivityID == "" {
			q["$or"] = bson.A{
				bson.M{"activity_id": ""},
				bson.M{"activity_id": bson.M{"$exists": false}},
			}
		} else {
			q["activity_id"] = *f.ActivityID
		}
	}
	switch {
	case f.Status != nil && f.StatusNot != nil:
		q["$and"] = bson.A{
			bson.M{"status": *f.Status},
			bson.M{"status": bson.M{"$ne": *f.StatusNot}},
		}
	case f.Status != nil:
		q["status"] = *f.Status
	case f.StatusNot != nil:
		q["status"] = bson.M{"$ne": *f.StatusNot}
	}
	if f.EngineGenerated != nil {
		q["engine_generated"] = *f.EngineGenerated
	}
	return q
}

func taskQuery(tenantID string, f TaskFilter) bson.M {
	q := bson.M{"tenant_id": tenantID}
	if f.ActivityID != nil {
		q["activity_id"] = *f.ActivityID
	}
	switch {
	case f.Status != nil && f.StatusNot != nil:
		q["$and"] = bson.A{
			bson.M{"status": *f.Status},
			bson.M{"status": bson.M{"$ne": *f.StatusNot}},
		}
	case f.Status != nil:
		q["status"] = *f.Status
	case f.StatusNot != nil:
		q["status"] = bson.M{"$ne": *f.StatusNot}
	}
	if f.DescriptionContains != "" {
		q["description"] = bson.M{"$regex": primitive.Regex{
			Pattern: regexp.QuoteMeta(f.DescriptionContains),
		}}
	}
	return q
}

func reportQuery(tenantID string, f ReportFilter) bson.M {
	q := bson.M{"tenant_id": tenantID}
	if f.Kind != nil {
		q["kind"] = *f.Kind
	}
	return q
}

func setIf[T any](set bson.M, key string, v *T) {
	if v != nil {
		set[key] = *v
	}
}

// Interface guard.
var _ Gateway = (*MongoGateway)(nil)
