package models

import "time"

// CronLock is a singleton lease record per job name, used as an advisory mutex
// across overlapping schedule firings or multi-instance deployments. The TTL
// lets a crashed holder's lock expire on its own; correctness never depends on
// the lock, only liveness does.
type CronLock struct {
	JobName   string    `json:"jobName" bson:"jobName"`
	Owner     string    `json:"owner" bson:"owner"`
	LockedAt  time.Time `json:"lockedAt" bson:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
}
