package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/models"
)

// RedemptionRepository owns withdrawal requests. Creation debits the cached
// available balance in the same transaction as the insert (optimistic
// reservation), so a concurrent second request cannot double-spend; the unique
// idempotency key collapses same-day duplicates.
type RedemptionRepository struct {
	client      *mongo.Client
	redemptions *mongo.Collection
	ledger      *LedgerRepository
}

func NewRedemptionRepository(client *mongo.Client, ledger *LedgerRepository) *RedemptionRepository {
	return &RedemptionRepository{
		client:      client,
		redemptions: config.GetCollection(client, config.RedemptionsCollection),
		ledger:      ledger,
	}
}

// CreateWithDebit inserts a redemption request in "requested" status and
// reserves its amount from the user's available balance atomically. When the
// idempotency key already exists the existing request is returned alongside
// ErrDuplicateRedemption (benign). ErrInsufficientBalance rolls the insert
// back.
func (r *RedemptionRepository) CreateWithDebit(ctx context.Context, userID primitive.ObjectID, amountCents int64, currency, idempotencyKey string) (*models.RedemptionRequest, error) {
	req := models.RedemptionRequest{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		AmountCents:    amountCents,
		Currency:       currency,
		Status:         models.RedemptionStatusRequested,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		_, err := r.redemptions.InsertOne(sc, req)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateRedemption
		}
		if err != nil {
			return fmt.Errorf("insert redemption request: %w", err)
		}
		return r.ledger.DebitAvailable(sc, userID, currency, amountCents)
	})

	if err == ErrDuplicateRedemption {
		existing, ferr := r.FindByIdempotencyKey(ctx, idempotencyKey)
		if ferr != nil {
			return nil, ferr
		}
		return existing, ErrDuplicateRedemption
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Resolve applies a payout confirmation to a request still in "requested"
// status. A rejection credits the reserved amount back in the same
// transaction. Re-delivered confirmations find the request already resolved
// and are no-ops.
func (r *RedemptionRepository) Resolve(ctx context.Context, requestID primitive.ObjectID, status, reason string) (*models.RedemptionRequest, error) {
	var req models.RedemptionRequest
	err := r.redemptions.FindOne(ctx, bson.M{"_id": requestID}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load redemption request: %w", err)
	}
	if req.Status != models.RedemptionStatusRequested {
		// Already resolved by an earlier delivery of this confirmation.
		return &req, nil
	}

	now := time.Now().UTC()
	err = r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := r.redemptions.UpdateOne(sc,
			bson.M{"_id": requestID, "status": models.RedemptionStatusRequested},
			bson.M{"$set": bson.M{
				"status":          status,
				"rejectionReason": reason,
				"processedAt":     now,
			}})
		if err != nil {
			return fmt.Errorf("resolve redemption request: %w", err)
		}
		if res.MatchedCount == 0 {
			// Lost the race to another delivery; nothing left to do.
			return nil
		}
		if status == models.RedemptionStatusRejected {
			return r.ledger.CreditBack(sc, req.UserID, req.Currency, req.AmountCents)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req.Status = status
	req.RejectionReason = reason
	req.ProcessedAt = &now
	return &req, nil
}

// FindByIdempotencyKey returns the request created under a given key.
func (r *RedemptionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.RedemptionRequest, error) {
	var req models.RedemptionRequest
	err := r.redemptions.FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find redemption by key: %w", err)
	}
	return &req, nil
}

// FoldStaleProcessing migrates requests stuck in the legacy "processing"
// state back to "requested" so they re-enter the normal flow. Run at startup.
func (r *RedemptionRepository) FoldStaleProcessing(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.redemptions.UpdateMany(ctx,
		bson.M{"status": models.RedemptionStatusProcessing, "createdAt": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": models.RedemptionStatusRequested}})
	if err != nil {
		return fmt.Errorf("fold stale processing redemptions: %w", err)
	}
	if res.ModifiedCount > 0 {
		log.Printf("Folded %d stale processing redemption(s) back to requested", res.ModifiedCount)
	}
	return nil
}

func (r *RedemptionRepository) withTransaction(ctx context.Context, fn func(mongo.SessionContext) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
