package services

import (
	"fmt"
	"sync/atomic"

	"gorm.io/gorm"

	"captable/internal/cache"
	"captable/internal/models"
)

// testEnv bundles the per-test fixtures the write-path tests share.
type testEnv struct {
	db           *gorm.DB
	company      *models.Company
	cs           *models.Shareholder
	shareholders ShareholderServicer
}

var numberCounter atomic.Int64

// nextNumber yields unique shareholder numbers within a test run.
func nextNumber() string {
	return fmt.Sprintf("SH-%d", numberCounter.Add(1))
}

// newNopStore returns a fresh in-process cache so tests never share
// projections.
func newNopStore() cache.Store {
	return cache.NewMemory()
}
