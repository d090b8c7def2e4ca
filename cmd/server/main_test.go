package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/repo"
)

func TestPurgeIdempotency_DropsExpiredUntilCancelled(t *testing.T) {
	dsn := fmt.Sprintf("file:main_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	ctx := context.Background()
	if _, err := repo.CreateIdempotency(ctx, db, "emp-1", "contacts", "old", "c-1", 201, -time.Minute); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "emp-1", "contacts", "fresh", "c-2", 201, time.Hour); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		purgeIdempotency(runCtx, db, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int64
		db.Model(&domain.Idempotency{}).Count(&n)
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired record not purged, count=%d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("purge loop did not stop on cancel")
	}

	if _, err := repo.GetIdempotency(ctx, db, "emp-1", "contacts", "fresh", time.Now().UTC()); err != nil {
		t.Fatalf("fresh record should survive: %v", err)
	}
}
