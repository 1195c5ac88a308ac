package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"coinledger/internal/config"
	"coinledger/internal/infrastructure/database"
	"coinledger/internal/ledger"
	"coinledger/internal/money"
	"coinledger/pkg/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *ledger.Ledger, *gorm.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "handler_test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=10000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		Business: config.BusinessConfig{
			WorldID:              1,
			StartingMoney:        "0",
			CommitTimeoutSeconds: 1,
		},
	}
	ldg, err := ledger.NewLedger(db, cfg)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return SetupRouter(ldg, rdb), ldg, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *response.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestGetBalanceCreatesPlayerAccount(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/api/v1/account/balance?name=alice", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "alice", data["name"])
	assert.Equal(t, "0c", data["balance_display"])
}

func TestTransferEndpoint(t *testing.T) {
	router, ldg, _ := newTestRouter(t)
	ctx := context.Background()

	world, err := ldg.WorldAccount(ctx, 1)
	require.NoError(t, err)
	alice, err := ldg.FindOrCreatePlayerAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = ldg.FindOrCreatePlayerAccount(ctx, "bob")
	require.NoError(t, err)
	_, err = ldg.Transfer(ctx, world.ID, alice.ID, 10000, 0, "seed")
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/transfer/execute", map[string]interface{}{
		"from":    "alice",
		"to":      "bob",
		"amount":  "50s",
		"message": "rent",
	})
	require.Equal(t, response.CodeSuccess, resp.Code)

	bob, err := ldg.FindAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bob.Balance)
}

func TestTransferEndpointInsufficientFunds(t *testing.T) {
	router, ldg, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := ldg.FindOrCreatePlayerAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = ldg.FindOrCreatePlayerAccount(ctx, "bob")
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/transfer/execute", map[string]interface{}{
		"from":   "alice",
		"to":     "bob",
		"amount": "1p",
	})
	assert.Equal(t, response.CodeInsufficientFunds, resp.Code)
}

func TestTransferEndpointRejectsBadAmount(t *testing.T) {
	router, ldg, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := ldg.FindOrCreatePlayerAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = ldg.FindOrCreatePlayerAccount(ctx, "bob")
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/transfer/execute", map[string]interface{}{
		"from":   "alice",
		"to":     "bob",
		"amount": "lots",
	})
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestTransferEndpointReportsStorageFailure(t *testing.T) {
	router, ldg, db := newTestRouter(t)
	ctx := context.Background()

	_, err := ldg.FindOrCreatePlayerAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = ldg.FindOrCreatePlayerAccount(ctx, "bob")
	require.NoError(t, err)

	// With the store gone the lookup error is not an account problem and must
	// not surface as one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	resp := doJSON(t, router, http.MethodPost, "/api/v1/transfer/execute", map[string]interface{}{
		"from":   "alice",
		"to":     "bob",
		"amount": "1s",
	})
	assert.Equal(t, response.CodeServerError, resp.Code)
}

func TestListAccountsExcludesSystemAndRanksByBalance(t *testing.T) {
	router, ldg, _ := newTestRouter(t)
	ctx := context.Background()

	world, err := ldg.WorldAccount(ctx, 1)
	require.NoError(t, err)
	for i, name := range []string{"carol", "alice", "bob"} {
		account, err := ldg.FindOrCreatePlayerAccount(ctx, name)
		require.NoError(t, err)
		_, err = ldg.Transfer(ctx, world.ID, account.ID, money.Money((i+1)*500), 0, "seed")
		require.NoError(t, err)
	}

	resp := doJSON(t, router, http.MethodGet, "/api/v1/account/list", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	rows := resp.Data.([]interface{})
	require.Len(t, rows, 3, "system account is excluded")

	var names []string
	var prev float64 = 1 << 60
	for _, row := range rows {
		entry := row.(map[string]interface{})
		names = append(names, entry["name"].(string))
		balance := entry["balance"].(float64)
		assert.LessOrEqual(t, balance, prev, "rows are ranked by balance")
		prev = balance
	}
	assert.Equal(t, []string{"bob", "alice", "carol"}, names)
}

func TestCreateAccountDuplicate(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := map[string]interface{}{"name": "alice", "world_id": 1}
	resp := doJSON(t, router, http.MethodPost, "/api/v1/account/create", body)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, router, http.MethodPost, "/api/v1/account/create", body)
	assert.Equal(t, response.CodeDuplicateName, resp.Code)
}

func TestSquashEndpoint(t *testing.T) {
	router, ldg, _ := newTestRouter(t)
	ctx := context.Background()

	world, err := ldg.WorldAccount(ctx, 1)
	require.NoError(t, err)
	alice, err := ldg.FindOrCreatePlayerAccount(ctx, "alice")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = ldg.Transfer(ctx, world.ID, alice.ID, 100, 0, fmt.Sprintf("seed %d", i))
		require.NoError(t, err)
	}

	resp := doJSON(t, router, http.MethodPost, "/api/v1/admin/squash", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	refreshed, err := ldg.FindAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(300), refreshed.Balance)
}

func TestPurgeEndpoint(t *testing.T) {
	router, ldg, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := ldg.FindOrCreatePlayerAccount(ctx, "broke")
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/admin/purge", map[string]interface{}{
		"remove_zero_balance": true,
	})
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["removed"])
}
