package testutil

import (
	"context"
	"testing"

	"github.com/trezcool/gradebook/core/student"
)

// NewService loads a student service over store and registers students through it.
func NewService(t *testing.T, store student.Store, students ...student.NewStudent) *student.Service {
	t.Helper()
	ctx := context.Background()
	svc, err := student.NewService(ctx, store, student.Options{})
	if err != nil {
		t.Fatalf("NewService() failed: %v", err)
	}
	for _, ns := range students {
		if _, err := svc.Add(ctx, ns); err != nil {
			t.Fatalf("Add(%q) failed: %v", ns.Name, err)
		}
	}
	return svc
}

// SeedLedger saves students, as given, straight into store.
func SeedLedger(t *testing.T, store student.Store, students ...student.Student) {
	t.Helper()
	if err := store.Save(context.Background(), &student.Ledger{Students: students}); err != nil {
		t.Fatalf("SeedLedger() failed: %v", err)
	}
}
