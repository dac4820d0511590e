package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// RevokedTokenKey returns the denylist key for a logged-out token id
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

// ExamPaperKey returns the cache key for the student-facing exam paper
func (r *CacheKeyStruct) ExamPaperKey(examID int) string {
	return fmt.Sprintf("exam:%d:paper", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID int) string {
	return fmt.Sprintf("exam:%d:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
