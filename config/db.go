// config/db.go
package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the affiliate ledger.
const (
	UsersCollection               = "users"
	LedgersCollection             = "affiliate_ledgers"
	InvoiceCreditsCollection      = "invoice_credits"
	SubscriptionCreditsCollection = "subscription_credits"
	RefundProgressCollection      = "refund_progress"
	CronLocksCollection           = "cron_locks"
	RedemptionsCollection         = "redemption_requests"
)

// ConnectDB establishes connection to MongoDB
func ConnectDB() *mongo.Client {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}

	// Only use a local fallback in development
	if mongoURI == "" {
		env := os.Getenv("ENV")
		if env == "development" || env == "dev" {
			mongoURI = "mongodb://localhost:27017/?replicaSet=rs0"
		} else {
			log.Fatal("MONGO_URI or MONGODB_URI environment variable is required for production")
		}
	}

	log.Printf("Connecting to MongoDB at: %s", maskMongoURI(mongoURI))

	clientOptions := options.Client().ApplyURI(mongoURI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatal("MongoDB connection error:", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		log.Fatal("MongoDB ping error:", err)
	}

	log.Println("Connected to MongoDB")

	setupCollections(client)

	return client
}

// GetCollection returns MongoDB collection
func GetCollection(client *mongo.Client, collectionName string) *mongo.Collection {
	return client.Database(DatabaseName()).Collection(collectionName)
}

// DatabaseName returns the configured database name.
func DatabaseName() string {
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "creatorlens"
	}
	return dbName
}

// setupCollections ensures all necessary collections and indexes exist. The
// uniqueness indexes here are load-bearing: they are the sole gate against
// double-crediting a retried webhook and against duplicate same-day redemptions.
func setupCollections(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := client.Database(DatabaseName())

	collections := []string{
		UsersCollection, LedgersCollection, InvoiceCreditsCollection,
		SubscriptionCreditsCollection, RefundProgressCollection,
		CronLocksCollection, RedemptionsCollection,
	}
	for _, collName := range collections {
		db.CreateCollection(ctx, collName)
	}

	uniqueIndexes := map[string]bson.D{
		UsersCollection:               {{Key: "email", Value: 1}},
		LedgersCollection:             {{Key: "userId", Value: 1}},
		InvoiceCreditsCollection:      {{Key: "invoiceId", Value: 1}, {Key: "affiliateUserId", Value: 1}},
		SubscriptionCreditsCollection: {{Key: "subscriptionId", Value: 1}, {Key: "affiliateUserId", Value: 1}},
		RefundProgressCollection:      {{Key: "invoiceId", Value: 1}, {Key: "affiliateUserId", Value: 1}},
		CronLocksCollection:           {{Key: "jobName", Value: 1}},
		RedemptionsCollection:         {{Key: "idempotencyKey", Value: 1}},
	}
	for collName, keys := range uniqueIndexes {
		_, err := db.Collection(collName).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			log.Printf("Error creating unique index for %s: %v", collName, err)
		}
	}

	// Maturation scans ledgers by nextMatureAt, oldest first.
	_, err := db.Collection(LedgersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "nextMatureAt", Value: 1}},
	})
	if err != nil {
		log.Printf("Error creating nextMatureAt index: %v", err)
	}

	// Affiliate lookup by code on invoice-paid webhooks.
	_, err = db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "affiliateCode", Value: 1}},
	})
	if err != nil {
		log.Printf("Error creating affiliateCode index: %v", err)
	}

	log.Println("Database collections and indexes setup complete")
}

// maskMongoURI masks the password in MongoDB URI for logging
func maskMongoURI(uri string) string {
	if idx := strings.Index(uri, "@"); idx > 0 {
		if colonIdx := strings.LastIndex(uri[:idx], ":"); colonIdx > 0 {
			return uri[:colonIdx+1] + "***" + uri[idx:]
		}
	}
	return uri
}
