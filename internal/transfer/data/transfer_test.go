package data

import (
	"testing"
	"time"

	"github.com/kingshare/transfer-backend/internal/pkg/database"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.PrepareStmt = false
	db, err := database.Open(postgres.New(postgres.Config{DSN: cfg.DSN()}), cfg, logger.NewNop())
	require.NoError(t, err)
	return db.Session(&gorm.Session{DryRun: true})
}

func TestIncrementQuery(t *testing.T) {
	db := newDryRunDB(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var po TransferPO
	stmt := incrementQuery(db, &po, "t1", at).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, `UPDATE "transfers" SET`)
	assert.Contains(t, sql, `"download_count"=download_count + 1`)
	assert.Contains(t, sql, "status <> ")
	assert.Contains(t, sql, "download_limit IS NULL OR download_count < download_limit")
	assert.Contains(t, sql, `RETURNING "download_count"`)
	assert.Contains(t, stmt.Vars, "t1")
	assert.Contains(t, stmt.Vars, string(biz.StatusRevoked))
}

func TestDecideQuery(t *testing.T) {
	db := newDryRunDB(t)

	stmt := decideQuery(db, "a1", biz.ApprovalApproved, "ok", time.Now()).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, `UPDATE "approval_requests" SET`)
	assert.Contains(t, sql, "id = ")
	assert.Contains(t, sql, "status = ")
	assert.Contains(t, stmt.Vars, string(biz.ApprovalApproved))
	assert.Contains(t, stmt.Vars, string(biz.ApprovalPending))
}

func TestRevokeAndExpireQueries(t *testing.T) {
	db := newDryRunDB(t)
	now := time.Now()

	revoke := revokeQuery(db, "t1", now).Statement
	assert.Contains(t, revoke.SQL.String(), "status <> ")
	assert.Contains(t, revoke.Vars, string(biz.StatusRevoked))

	expire := markExpiredQuery(db, now).Statement
	assert.Contains(t, expire.SQL.String(), "expiration_at < ")
	assert.Contains(t, expire.Vars, string(biz.StatusActive))
	assert.Contains(t, expire.Vars, string(biz.StatusExpired))
}

func TestSummaryQuery(t *testing.T) {
	db := newDryRunDB(t)

	var row summaryRow
	stmt := summaryQuery(db, "t1").Find(&row).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "COUNT(DISTINCT NULLIF(ip_address, ''))")
	assert.Contains(t, sql, "MAX(downloaded_at)")
	assert.Contains(t, sql, `FROM "download_events"`)
	assert.Equal(t, []interface{}{"t1"}, stmt.Vars)
}

func TestInsertApprovalQuery(t *testing.T) {
	db := newDryRunDB(t)

	po := &ApprovalRequestPO{ID: "a1", TransferID: "t1", RequesterEmail: "bob@example.com", Status: string(biz.ApprovalPending)}
	sql := insertApprovalQuery(db, po).Statement.SQL.String()

	assert.Contains(t, sql, `INSERT INTO "approval_requests"`)
	assert.Contains(t, sql, `ON CONFLICT ("transfer_id","requester_email") DO NOTHING`)
}

func TestPendingQuery(t *testing.T) {
	db := newDryRunDB(t)

	var rows []ApprovalRequestPO
	owned := pendingQuery(db, "owner-1").Find(&rows).Statement
	sql := owned.SQL.String()
	assert.Contains(t, sql, "JOIN transfers ON transfers.id = approval_requests.transfer_id")
	assert.Contains(t, sql, "transfers.user_id = ")
	assert.Contains(t, sql, "ORDER BY approval_requests.created_at ASC")
	assert.Equal(t, []interface{}{string(biz.ApprovalPending), "owner-1"}, owned.Vars)

	all := pendingQuery(db, "").Find(&rows).Statement
	assert.NotContains(t, all.SQL.String(), "transfers.user_id")
}

func TestModelConversionRoundTrip(t *testing.T) {
	limit := 3
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &biz.Transfer{
		ID:               "t1",
		ShareToken:       "token-aaaa",
		UserID:           "owner-1",
		ExpirationAt:     now.Add(time.Hour),
		DownloadLimit:    &limit,
		DownloadCount:    1,
		TrackingEnabled:  true,
		ApprovalRequired: true,
		Status:           biz.StatusActive,
		Files: []biz.TransferFile{
			{ID: "f1", FileName: "a.txt", FileSize: 1, Position: 0},
			{ID: "f2", FileName: "b.txt", FileSize: 2, Position: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	out := toTransferPO(in).toBiz()
	assert.Equal(t, in, out)
}
