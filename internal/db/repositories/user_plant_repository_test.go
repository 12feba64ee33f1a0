package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

var userPlantCols = []string{
	"id", "uid", "name", "description", "type", "capacity", "owner_name", "owner_email", "owner_phone",
	"address", "city", "state", "postal_code", "country", "latitude", "longitude", "approval_status",
	"approved_at", "approved_by", "rejection_reason", "created_by", "created_at", "updated_at",
}

func userPlantRow(id int64, status string, approvedAt, approvedBy, reason interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userPlantCols).AddRow(id, "req-1", "Roof Array", nil, "solar", 42.5,
		"Ona", "ona@example.com", "+37060000000", "Gedimino 1", "Vilnius", "Vilnius", "01103", "LT",
		54.68, 25.28, status, approvedAt, approvedBy, reason, int64(3), now, now)
}

// ---------------------------------------------------------------------------
// UserPlantRepository
// ---------------------------------------------------------------------------

func TestListUserPlants(t *testing.T) {
	tests := []struct {
		name   string
		status string
		query  string
		args   int
	}{
		{"all", "", "SELECT .* FROM user_plants ORDER BY created_at DESC", 0},
		{"filtered", models.ApprovalPending, "SELECT .* FROM user_plants WHERE approval_status = \\$1 ORDER BY created_at DESC", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newSqlxMock(t)
			repo := NewUserPlantRepository(db)
			q := mock.ExpectQuery(tt.query)
			if tt.args > 0 {
				q.WithArgs(tt.status)
			}
			q.WillReturnRows(userPlantRow(1, models.ApprovalPending, nil, nil, nil))

			plants, err := repo.ListUserPlants(context.Background(), tt.status)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(plants) != 1 || plants[0].UID != "req-1" || plants[0].Capacity != 42.5 {
				t.Errorf("plants = %+v", plants)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestCreateUserPlant(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewUserPlantRepository(db)
	creator := int64(3)
	p := &models.UserPlant{UID: "req-1", Name: "Roof Array", Type: "solar", Capacity: 42.5, CreatedBy: &creator}

	mock.ExpectQuery("INSERT INTO user_plants").
		WithArgs("req-1", "Roof Array", nil, "solar", 42.5, "", "", "", "", "", "", "", "", nil, nil,
			models.ApprovalPending, &creator, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	if err := repo.CreateUserPlant(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 11 || p.ApprovalStatus != models.ApprovalPending {
		t.Errorf("p = %+v, want id 11 pending", p)
	}
}

func TestCreateUserPlant_DuplicateUID(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewUserPlantRepository(db)
	mock.ExpectQuery("INSERT INTO user_plants").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.CreateUserPlant(context.Background(), &models.UserPlant{UID: "req-1"})
	if err != ErrUserPlantUIDTaken {
		t.Fatalf("err = %v, want ErrUserPlantUIDTaken", err)
	}
}

func TestApproveUserPlant(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewUserPlantRepository(db)
	now := time.Now()
	mock.ExpectQuery("UPDATE user_plants SET approval_status = \\$2").
		WithArgs(int64(1), models.ApprovalApproved, sqlmock.AnyArg(), int64(2), nil).
		WillReturnRows(userPlantRow(1, models.ApprovalApproved, now, int64(2), nil))

	p, err := repo.Approve(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ApprovalStatus != models.ApprovalApproved || p.ApprovedBy == nil || *p.ApprovedBy != 2 {
		t.Errorf("p = %+v, want approved by 2", p)
	}
}

func TestRejectUserPlant(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewUserPlantRepository(db)
	reason := "duplicate site"
	mock.ExpectQuery("UPDATE user_plants SET approval_status = \\$2").
		WithArgs(int64(1), models.ApprovalRejected, nil, int64(2), &reason).
		WillReturnRows(userPlantRow(1, models.ApprovalRejected, nil, int64(2), reason))

	p, err := repo.Reject(context.Background(), 1, 2, &reason)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ApprovedAt != nil {
		t.Errorf("ApprovedAt = %v, want nil", p.ApprovedAt)
	}
	if p.RejectionReason == nil || *p.RejectionReason != reason {
		t.Errorf("RejectionReason = %v, want %q", p.RejectionReason, reason)
	}
}

func TestApproveUserPlant_NotFound(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewUserPlantRepository(db)
	mock.ExpectQuery("UPDATE user_plants").
		WillReturnRows(sqlmock.NewRows(userPlantCols))

	p, err := repo.Approve(context.Background(), 99, 2)
	if err != nil || p != nil {
		t.Fatalf("Approve(missing) = %v, %v; want nil, nil", p, err)
	}
}
