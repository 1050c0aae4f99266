package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/models"
	"github.com/creatorlens/affiliate_backend/utils"
)

// LedgerRepository owns the per-user commission ledger and the idempotency
// index collections that guard it. Every mutation of a ledger document goes
// through an optimistic version check; crediting and refund reconciliation
// additionally pair the ledger write with their index/progress write inside a
// single MongoDB transaction, so a webhook retry can never observe a half
// committed state.
type LedgerRepository struct {
	client              *mongo.Client
	ledgers             *mongo.Collection
	invoiceCredits      *mongo.Collection
	subscriptionCredits *mongo.Collection
	refundProgress      *mongo.Collection
}

func NewLedgerRepository(client *mongo.Client) *LedgerRepository {
	return &LedgerRepository{
		client:              client,
		ledgers:             config.GetCollection(client, config.LedgersCollection),
		invoiceCredits:      config.GetCollection(client, config.InvoiceCreditsCollection),
		subscriptionCredits: config.GetCollection(client, config.SubscriptionCreditsCollection),
		refundProgress:      config.GetCollection(client, config.RefundProgressCollection),
	}
}

// CreditParams describes one commission credit derived from a paid invoice.
type CreditParams struct {
	UserID         primitive.ObjectID
	InvoiceID      string
	SubscriptionID string
	AmountCents    int64
	Currency       string
	HoldDays       int
}

// CreditCommission appends a pending commission entry for the affiliate,
// gated by exactly one idempotency index. Invoice-anchored credits dedupe on
// the (invoiceId, affiliateUserId) pair, so each renewal invoice of a
// subscription earns its own commission and the invoice row anchors later
// refund correlation. Subscription-anchored credits (no invoice id) dedupe
// once per referred subscription instead. The index insert and the ledger
// append commit in one transaction, so losing the index race can never leave
// a second entry behind. Returns ErrAlreadyCredited when the pair exists.
func (r *LedgerRepository) CreditCommission(ctx context.Context, p CreditParams) error {
	now := time.Now().UTC()
	entry := models.CommissionLogEntry{
		ID:                   primitive.NewObjectID(),
		Type:                 models.EntryTypeCommission,
		Status:               models.EntryStatusPending,
		AmountCents:          p.AmountCents,
		Currency:             p.Currency,
		SourceInvoiceID:      p.InvoiceID,
		SourceSubscriptionID: p.SubscriptionID,
		AvailableAt:          now.AddDate(0, 0, p.HoldDays),
		CreatedAt:            now,
	}

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		switch creditGate(p.InvoiceID, p.SubscriptionID) {
		case gateInvoice:
			_, err := r.invoiceCredits.InsertOne(sc, bson.M{
				"invoiceId":       p.InvoiceID,
				"affiliateUserId": p.UserID,
				"createdAt":       now,
			})
			if mongo.IsDuplicateKeyError(err) {
				return ErrAlreadyCredited
			}
			if err != nil {
				return fmt.Errorf("insert invoice credit index: %w", err)
			}
		case gateSubscription:
			_, err := r.subscriptionCredits.InsertOne(sc, bson.M{
				"subscriptionId":  p.SubscriptionID,
				"affiliateUserId": p.UserID,
				"createdAt":       now,
			})
			if mongo.IsDuplicateKeyError(err) {
				return ErrAlreadyCredited
			}
			if err != nil {
				return fmt.Errorf("insert subscription credit index: %w", err)
			}
		}
		return r.appendEntry(sc, p.UserID, entry)
	})
}

// Idempotency gates for a credit.
const (
	gateNone         = ""
	gateInvoice      = "invoice"
	gateSubscription = "subscription"
)

// creditGate picks which idempotency pair guards a credit. An invoice id wins
// even when a subscription id is also present: recurring invoices of the same
// subscription are distinct credits, deduped per invoice.
func creditGate(invoiceID, subscriptionID string) string {
	if invoiceID != "" {
		return gateInvoice
	}
	if subscriptionID != "" {
		return gateSubscription
	}
	return gateNone
}

// appendEntry pushes an entry onto the user's ledger, creating the ledger
// document on first credit. A pending entry pulls nextMatureAt down via $min
// so the maturation scan picks the user up at the right time.
func (r *LedgerRepository) appendEntry(ctx context.Context, userID primitive.ObjectID, entry models.CommissionLogEntry) error {
	update := bson.M{
		"$push":        bson.M{"entries": entry},
		"$inc":         bson.M{"version": 1},
		"$set":         bson.M{"updatedAt": entry.CreatedAt},
		"$setOnInsert": bson.M{"balances": bson.M{}, "createdAt": entry.CreatedAt},
	}
	if entry.Status == models.EntryStatusPending {
		update["$min"] = bson.M{"nextMatureAt": entry.AvailableAt}
	}

	_, err := r.ledgers.UpdateOne(ctx, bson.M{"userId": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// FindMaturable returns up to limit users having at least one pending entry
// whose hold period has elapsed, oldest money first so worst-case payout delay
// stays bounded.
func (r *LedgerRepository) FindMaturable(ctx context.Context, now time.Time, limit int) ([]primitive.ObjectID, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "nextMatureAt", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"userId": 1})

	cursor, err := r.ledgers.Find(ctx, bson.M{"nextMatureAt": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find maturable ledgers: %w", err)
	}
	defer cursor.Close(ctx)

	var userIDs []primitive.ObjectID
	for cursor.Next(ctx) {
		var doc struct {
			UserID primitive.ObjectID `bson:"userId"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, doc.UserID)
	}
	return userIDs, cursor.Err()
}

// MatureEntries transitions up to maxEntries eligible pending entries of one
// user to available, stamping maturedAt and folding the matured amounts into
// the cached balances (debt is repaid before anything becomes spendable).
// Returns the number of entries matured.
func (r *LedgerRepository) MatureEntries(ctx context.Context, userID primitive.ObjectID, now time.Time, maxEntries int) (int, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ledger, err := r.getLedger(ctx, userID)
		if err == ErrNotFound {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		eligible := eligibleEntryIndexes(ledger.Entries, now, maxEntries)
		if len(eligible) == 0 {
			return 0, nil
		}

		entries := make([]models.CommissionLogEntry, len(ledger.Entries))
		copy(entries, ledger.Entries)

		maturedByCurrency := make(map[string]int64)
		for _, i := range eligible {
			entries[i].Status = models.EntryStatusAvailable
			t := now
			entries[i].MaturedAt = &t
			maturedByCurrency[entries[i].Currency] += entries[i].AmountCents
		}

		balances := copyBalances(ledger.Balances)
		for currency, cents := range maturedByCurrency {
			b := balances[currency]
			b.AvailableCents, b.DebtCents = models.ApplyBalanceDelta(b.AvailableCents, b.DebtCents, cents)
			balances[currency] = b
		}

		err = r.replaceLedgerState(ctx, ledger, entries, balances, now)
		if err == errVersionConflict {
			continue
		}
		if err != nil {
			return 0, err
		}
		return len(eligible), nil
	}
	return 0, fmt.Errorf("mature entries for user %s: %w", userID.Hex(), errVersionConflict)
}

// ApplyRefund reconciles a gateway-reported cumulative refunded amount against
// the affiliate credited for the invoice. The incremental delta against the
// stored refund progress makes replayed and out-of-order deliveries no-ops;
// the reversal entry and the progress update commit together, so a replay can
// never double-reverse. Returns the reversed commission in cents (0 means the
// event carried nothing new or no affiliate was credited for the invoice)
// along with the affiliate whose ledger changed.
func (r *LedgerRepository) ApplyRefund(ctx context.Context, invoiceID string, newCumulativeRefundedPaidCents, ratePercent int64) (int64, primitive.ObjectID, error) {
	var credit struct {
		AffiliateUserID primitive.ObjectID `bson:"affiliateUserId"`
	}
	err := r.invoiceCredits.FindOne(ctx, bson.M{"invoiceId": invoiceID}).Decode(&credit)
	if err == mongo.ErrNoDocuments {
		return 0, primitive.NilObjectID, nil
	}
	if err != nil {
		return 0, primitive.NilObjectID, fmt.Errorf("look up invoice credit: %w", err)
	}
	userID := credit.AffiliateUserID

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var reversed int64
		err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
			var progress models.RefundProgress
			prior := int64(0)
			err := r.refundProgress.FindOne(sc, bson.M{"invoiceId": invoiceID, "affiliateUserId": userID}).Decode(&progress)
			if err != nil && err != mongo.ErrNoDocuments {
				return fmt.Errorf("load refund progress: %w", err)
			}
			if err == nil {
				prior = progress.RefundedPaidCentsTotal
			}

			delta, reversal := refundReversal(prior, newCumulativeRefundedPaidCents, ratePercent)
			if delta <= 0 {
				reversed = 0
				return nil
			}

			ledger, lerr := r.getLedgerWith(sc, userID)
			if lerr != nil {
				return lerr
			}
			currency, cerr := commissionCurrency(ledger.Entries, invoiceID)
			if cerr != nil {
				return cerr
			}

			reversed = reversal
			now := time.Now().UTC()

			entries := append(append([]models.CommissionLogEntry{}, ledger.Entries...), models.CommissionLogEntry{
				ID:              primitive.NewObjectID(),
				Type:            models.EntryTypeRefundReversal,
				Status:          models.EntryStatusAvailable,
				AmountCents:     -reversed,
				Currency:        currency,
				SourceInvoiceID: invoiceID,
				AvailableAt:     now,
				MaturedAt:       &now,
				CreatedAt:       now,
			})

			balances := copyBalances(ledger.Balances)
			b := balances[currency]
			b.AvailableCents, b.DebtCents = models.ApplyBalanceDelta(b.AvailableCents, b.DebtCents, -reversed)
			balances[currency] = b

			if err := r.replaceLedgerStateWith(sc, ledger, entries, balances, now); err != nil {
				return err
			}

			if prior == 0 && progress.ID.IsZero() {
				_, err = r.refundProgress.InsertOne(sc, models.RefundProgress{
					ID:                     primitive.NewObjectID(),
					InvoiceID:              invoiceID,
					AffiliateUserID:        userID,
					RefundedPaidCentsTotal: newCumulativeRefundedPaidCents,
					UpdatedAt:              now,
				})
				if mongo.IsDuplicateKeyError(err) {
					return errVersionConflict
				}
				return err
			}

			res, err := r.refundProgress.UpdateOne(sc,
				bson.M{"invoiceId": invoiceID, "affiliateUserId": userID, "refundedPaidCentsTotal": prior},
				bson.M{"$set": bson.M{"refundedPaidCentsTotal": newCumulativeRefundedPaidCents, "updatedAt": now}})
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				// Another delivery advanced the cursor concurrently.
				return errVersionConflict
			}
			return nil
		})
		if err == errVersionConflict {
			continue
		}
		if err != nil {
			return 0, primitive.NilObjectID, err
		}
		return reversed, userID, nil
	}
	return 0, primitive.NilObjectID, fmt.Errorf("apply refund for invoice %s: %w", invoiceID, errVersionConflict)
}

// DebitAvailable reserves amountCents of available balance for a redemption by
// appending a negative adjustment entry. Fails with ErrInsufficientBalance
// rather than creating debt: redemptions may only spend what is spendable.
func (r *LedgerRepository) DebitAvailable(ctx context.Context, userID primitive.ObjectID, currency string, amountCents int64) error {
	return r.applyAdjustment(ctx, userID, currency, -amountCents, true)
}

// CreditBack returns a reserved amount after a rejected payout.
func (r *LedgerRepository) CreditBack(ctx context.Context, userID primitive.ObjectID, currency string, amountCents int64) error {
	return r.applyAdjustment(ctx, userID, currency, amountCents, false)
}

func (r *LedgerRepository) applyAdjustment(ctx context.Context, userID primitive.ObjectID, currency string, deltaCents int64, requireFunds bool) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ledger, err := r.getLedger(ctx, userID)
		if err != nil {
			return err
		}

		b := ledger.Balances[currency]
		if requireFunds && (b.AvailableCents+deltaCents < 0 || b.DebtCents > 0) {
			return ErrInsufficientBalance
		}

		now := time.Now().UTC()
		entries := append(append([]models.CommissionLogEntry{}, ledger.Entries...), models.CommissionLogEntry{
			ID:          primitive.NewObjectID(),
			Type:        models.EntryTypeAdjustment,
			Status:      models.EntryStatusAvailable,
			AmountCents: deltaCents,
			Currency:    currency,
			AvailableAt: now,
			MaturedAt:   &now,
			CreatedAt:   now,
		})

		balances := copyBalances(ledger.Balances)
		b = balances[currency]
		b.AvailableCents, b.DebtCents = models.ApplyBalanceDelta(b.AvailableCents, b.DebtCents, deltaCents)
		balances[currency] = b

		err = r.replaceLedgerState(ctx, ledger, entries, balances, now)
		if err == errVersionConflict {
			continue
		}
		return err
	}
	return fmt.Errorf("adjust balance for user %s: %w", userID.Hex(), errVersionConflict)
}

// GetLedger loads a user's full ledger document.
func (r *LedgerRepository) GetLedger(ctx context.Context, userID primitive.ObjectID) (*models.AffiliateLedger, error) {
	return r.getLedger(ctx, userID)
}

// RebuildBalances replays the entry log into the cached balance map and
// nextMatureAt marker. Safety net for the materialized view: the cache is
// always reconcilable from the entries.
func (r *LedgerRepository) RebuildBalances(ctx context.Context, userID primitive.ObjectID) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ledger, err := r.getLedger(ctx, userID)
		if err != nil {
			return err
		}

		balances := models.RebuiltBalances(ledger.Entries)
		err = r.replaceLedgerState(ctx, ledger, ledger.Entries, balances, time.Now().UTC())
		if err == errVersionConflict {
			continue
		}
		return err
	}
	return fmt.Errorf("rebuild balances for user %s: %w", userID.Hex(), errVersionConflict)
}

func (r *LedgerRepository) getLedger(ctx context.Context, userID primitive.ObjectID) (*models.AffiliateLedger, error) {
	return decodeLedger(r.ledgers.FindOne(ctx, bson.M{"userId": userID}))
}

func (r *LedgerRepository) getLedgerWith(sc mongo.SessionContext, userID primitive.ObjectID) (*models.AffiliateLedger, error) {
	return decodeLedger(r.ledgers.FindOne(sc, bson.M{"userId": userID}))
}

func decodeLedger(res *mongo.SingleResult) (*models.AffiliateLedger, error) {
	var ledger models.AffiliateLedger
	err := res.Decode(&ledger)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return &ledger, nil
}

// replaceLedgerState writes back the full entry array, balances and
// nextMatureAt under an optimistic version check.
func (r *LedgerRepository) replaceLedgerState(ctx context.Context, ledger *models.AffiliateLedger, entries []models.CommissionLogEntry, balances map[string]models.CurrencyBalance, now time.Time) error {
	return r.writeLedgerState(ctx, r.ledgers, ledger, entries, balances, now)
}

func (r *LedgerRepository) replaceLedgerStateWith(sc mongo.SessionContext, ledger *models.AffiliateLedger, entries []models.CommissionLogEntry, balances map[string]models.CurrencyBalance, now time.Time) error {
	return r.writeLedgerState(sc, r.ledgers, ledger, entries, balances, now)
}

func (r *LedgerRepository) writeLedgerState(ctx context.Context, coll *mongo.Collection, ledger *models.AffiliateLedger, entries []models.CommissionLogEntry, balances map[string]models.CurrencyBalance, now time.Time) error {
	res, err := coll.UpdateOne(ctx,
		bson.M{"userId": ledger.UserID, "version": ledger.Version},
		ledgerStateUpdate(entries, balances, now))
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	if res.MatchedCount == 0 {
		return errVersionConflict
	}
	return nil
}

// ledgerStateUpdate builds the write-back update for a ledger's entries and
// balances, re-deriving nextMatureAt from the entries. When nothing is pending
// the field is $unset rather than set to null: the append path re-arms the
// scan with $min, and in BSON order null sorts below every date, so a stored
// null would win every $min and the user would never be scanned again.
func ledgerStateUpdate(entries []models.CommissionLogEntry, balances map[string]models.CurrencyBalance, now time.Time) bson.M {
	set := bson.M{
		"entries":   entries,
		"balances":  balances,
		"updatedAt": now,
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	if next := models.NextPendingAvailableAt(entries); next != nil {
		set["nextMatureAt"] = *next
	} else {
		update["$unset"] = bson.M{"nextMatureAt": ""}
	}
	return update
}

func (r *LedgerRepository) withTransaction(ctx context.Context, fn func(mongo.SessionContext) error) error {
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

// eligibleEntryIndexes picks up to max pending entries whose hold period has
// elapsed, ordered by availableAt so the oldest money matures first.
func eligibleEntryIndexes(entries []models.CommissionLogEntry, now time.Time, max int) []int {
	var indexes []int
	for i := range entries {
		if entries[i].Status == models.EntryStatusPending && !entries[i].AvailableAt.After(now) {
			indexes = append(indexes, i)
		}
	}
	sort.Slice(indexes, func(a, b int) bool {
		return entries[indexes[a]].AvailableAt.Before(entries[indexes[b]].AvailableAt)
	})
	if max > 0 && len(indexes) > max {
		indexes = indexes[:max]
	}
	return indexes
}

// refundReversal converts a newly reported cumulative refunded total into the
// incremental commission reversal against the stored cursor. Replayed and
// out-of-order deliveries carry a non-positive delta and reverse nothing; the
// cursor only ever moves forward.
func refundReversal(priorCumulativeCents, newCumulativeCents, ratePercent int64) (deltaCents, reversalCents int64) {
	delta := newCumulativeCents - priorCumulativeCents
	if delta <= 0 {
		return delta, 0
	}
	return delta, utils.CommissionCents(delta, ratePercent)
}

func commissionCurrency(entries []models.CommissionLogEntry, invoiceID string) (string, error) {
	for i := range entries {
		if entries[i].Type == models.EntryTypeCommission && entries[i].SourceInvoiceID == invoiceID {
			return entries[i].Currency, nil
		}
	}
	return "", fmt.Errorf("no commission entry for invoice %s: %w", invoiceID, ErrNotFound)
}

func copyBalances(src map[string]models.CurrencyBalance) map[string]models.CurrencyBalance {
	dst := make(map[string]models.CurrencyBalance, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
