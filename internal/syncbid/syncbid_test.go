package syncbid

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func entry(id, bidID, amount, st string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]interface{}{
		"id": bidID, "bidder": "u1", "category": "cars", "item": "car1",
		"amount": amount, "at": "1700000000000", "st": st,
	}}
}

func TestPersist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	at := time.UnixMilli(1_700_000_000_000).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bids (.+) ON CONFLICT \\(id\\) DO UPDATE SET status = EXCLUDED.status").
		WithArgs("b1", "u1", "cars", "car1", 11000.0, at, "outbid").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bids").
		WithArgs("b2", "u1", "cars", "car1", 12000.0, at, "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO archive_cursors (stream,last_id,updated_at) VALUES ($1,$2,now()) ON CONFLICT (stream) DO UPDATE")).
		WithArgs("bids_stream", "1-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = persist(context.Background(), db, []redis.XMessage{
		entry("1-0", "b1", "11000", "outbid"),
		entry("1-1", "", "11000", "active"), // skipped
		entry("1-2", "b2", "12000", "active"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bids").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = persist(context.Background(), db, []redis.XMessage{entry("1-0", "b1", "11000", "active")})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	query := regexp.QuoteMeta("SELECT last_id FROM archive_cursors WHERE stream = $1")

	mock.ExpectQuery(query).WithArgs("bids_stream").WillReturnRows(sqlmock.NewRows([]string{"last_id"}))
	id, err := loadCursor(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, "0-0", id)

	mock.ExpectQuery(query).WithArgs("bids_stream").
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow("1700000000000-3"))
	id, err = loadCursor(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, "1700000000000-3", id)

	mock.ExpectQuery(query).WillReturnError(errors.New("down"))
	_, err = loadCursor(context.Background(), db)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecode(t *testing.T) {
	b, err := decode(entry("1-0", "b1", "11000.5", "won"))
	require.NoError(t, err)
	require.Equal(t, 11000.5, b.Amount)
	require.Equal(t, "won", string(b.Status))

	_, err = decode(entry("1-0", "b1", "lots", "won"))
	require.Error(t, err)
}
