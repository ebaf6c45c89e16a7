package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/tenant"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/constants"
)

func testCtx(tenantID string, tx *stubTx) context.Context {
	ctx := composables.WithTenantID(context.Background(), tenantID)
	return context.WithValue(ctx, constants.TxKey, tx)
}

func validPayloadJSON(t *testing.T, userID, tenantID string) []byte {
	t.Helper()
	data, err := json.Marshal(&session.Payload{
		Version:  session.PayloadVersion,
		UserID:   userID,
		TenantID: tenantID,
		Email:    "user@example.com",
	})
	require.NoError(t, err)
	return data
}

func TestSessionRepository_Create_MarshalsPayload(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour)
	created := time.Now()

	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			require.Contains(t, sql, "INSERT INTO sessions")
			require.Equal(t, "tok-1", args[0])
			require.Equal(t, "u1", args[1])

			var p session.Payload
			require.NoError(t, json.Unmarshal(args[2].([]byte), &p))
			require.Equal(t, "u1", p.UserID)
			require.Equal(t, "acme", p.TenantID)
			require.Equal(t, expires, args[3])
			require.Equal(t, created, args[4])
			return pgconn.CommandTag{}, nil
		},
	}

	repo := NewSessionRepository()
	err := repo.Create(testCtx("acme", tx), &session.Session{
		Token:    "tok-1",
		TenantID: "acme",
		UserID:   "u1",
		Payload: &session.Payload{
			Version:  session.PayloadVersion,
			UserID:   "u1",
			TenantID: "acme",
		},
		ExpiresAt: expires,
		CreatedAt: created,
	})
	require.NoError(t, err)
	require.Equal(t, 1, tx.execCalls)
}

func TestSessionRepository_Create_BootstrapsMissingTable(t *testing.T) {
	var sqls []string
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			sqls = append(sqls, sql)
			if len(sqls) == 1 {
				return pgconn.CommandTag{}, &pgconn.PgError{Code: "42P01"}
			}
			return pgconn.CommandTag{}, nil
		},
	}

	repo := NewSessionRepository()
	err := repo.Create(testCtx("acme", tx), &session.Session{
		Token:   "tok-1",
		UserID:  "u1",
		Payload: &session.Payload{UserID: "u1", TenantID: "acme"},
	})
	require.NoError(t, err)
	require.Len(t, sqls, 3)
	require.Contains(t, sqls[0], "INSERT INTO sessions")
	require.Contains(t, sqls[1], "CREATE TABLE IF NOT EXISTS sessions")
	require.Contains(t, sqls[2], "INSERT INTO sessions")
}

func TestSessionRepository_GetByToken_MapsRowAndTenant(t *testing.T) {
	now := time.Now()
	data := validPayloadJSON(t, "u1", "acme")

	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "FROM sessions")
			require.Equal(t, "tok-1", args[0])
			return stubRow{scan: func(dest ...any) error {
				*dest[0].(*string) = "tok-1"
				*dest[1].(*string) = "u1"
				*dest[2].(*[]byte) = data
				*dest[3].(*time.Time) = now.Add(time.Hour)
				*dest[4].(*time.Time) = now
				return nil
			}}
		},
	}

	repo := NewSessionRepository()
	sess, err := repo.GetByToken(testCtx("acme", tx), "tok-1")
	require.NoError(t, err)
	require.Equal(t, "tok-1", sess.Token)
	require.Equal(t, "acme", sess.TenantID)
	require.Equal(t, "u1", sess.UserID)
	require.Equal(t, "u1", sess.Payload.UserID)
	require.Equal(t, "user@example.com", sess.Payload.Email)
	require.False(t, sess.Expired(now))
}

func TestSessionRepository_GetByToken_NotFound(t *testing.T) {
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	repo := NewSessionRepository()
	sess, err := repo.GetByToken(testCtx("acme", tx), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Nil(t, sess)
}

func TestSessionRepository_GetByToken_RejectsCorruptPayload(t *testing.T) {
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return stubRow{scan: func(dest ...any) error {
				*dest[0].(*string) = "tok-1"
				*dest[1].(*string) = "u1"
				*dest[2].(*[]byte) = []byte(`{"user_id":""}`)
				*dest[3].(*time.Time) = time.Now().Add(time.Hour)
				*dest[4].(*time.Time) = time.Now()
				return nil
			}}
		},
	}

	repo := NewSessionRepository()
	_, err := repo.GetByToken(testCtx("acme", tx), "tok-1")
	require.ErrorIs(t, err, session.ErrInvalidPayload)
}

func TestSessionRepository_Delete(t *testing.T) {
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			require.Contains(t, sql, "DELETE FROM sessions")
			require.Equal(t, "tok-1", args[0])
			return pgconn.CommandTag{}, nil
		},
	}

	repo := NewSessionRepository()
	require.NoError(t, repo.Delete(testCtx("acme", tx), "tok-1"))
	require.Equal(t, 1, tx.execCalls)
}

func TestTenantDirectoryRepository_GetByID_MapsRow(t *testing.T) {
	now := time.Now()
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "FROM tenants")
			require.Equal(t, "acme", args[0])
			return &stubRows{data: [][]any{
				{"acme", "Acme Corp", "postgres://acme", true, now, now},
			}}, nil
		},
	}

	repo := NewTenantDirectoryRepository()
	result, err := repo.GetByID(testCtx("acme", tx), "acme")
	require.NoError(t, err)
	require.Equal(t, "acme", result.ID())
	require.Equal(t, "Acme Corp", result.Name())
	require.Equal(t, "postgres://acme", result.ConnectionString())
	require.True(t, result.IsActive())
}

func TestTenantDirectoryRepository_GetByID_NotFound(t *testing.T) {
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &stubRows{}, nil
		},
	}

	repo := NewTenantDirectoryRepository()
	_, err := repo.GetByID(testCtx("acme", tx), "ghost")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

type stubTx struct {
	execCalls    int
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execCalls++
	if s.execFunc == nil {
		return pgconn.CommandTag{}, nil
	}
	return s.execFunc(ctx, sql, args...)
}

func (s *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.queryFunc == nil {
		return nil, errors.New("query not implemented")
	}
	return s.queryFunc(ctx, sql, args...)
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.queryRowFunc == nil {
		return stubRow{scan: func(dest ...any) error { return errors.New("query row not implemented") }}
	}
	return s.queryRowFunc(ctx, sql, args...)
}

type stubRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return errors.New("no current row to scan")
	}
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("destination length %d does not match row length %d", len(dest), len(row))
	}
	for i, target := range dest {
		switch v := target.(type) {
		case *string:
			*v = row[i].(string)
		case *bool:
			*v = row[i].(bool)
		case *time.Time:
			*v = row[i].(time.Time)
		case *[]byte:
			*v = row[i].([]byte)
		default:
			return fmt.Errorf("unsupported scan target %T", target)
		}
	}
	return nil
}

func (r *stubRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.idx-1], nil
}

func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Err() error                                   { return r.err }
func (r *stubRows) Close()                                       {}
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return errors.New("scan not implemented")
	}
	return r.scan(dest...)
}
