package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func sampleLink(created time.Time) *model.FidLink {
	return &model.FidLink{
		Fid:                       777,
		IdentityPublicKey:         "idpub",
		SigningPublicKey:          "signer",
		Signature:                 "sig",
		Created:                   created,
		IsSigningKeyValid:         true,
		SigningKeyLastValidatedAt: created,
	}
}

func TestFidLinkRepo_UpsertNewer_Insert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFidLinkRepo(db)

	l := sampleLink(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created FROM fid_registrations WHERE fid=\$1 FOR UPDATE`).
		WithArgs(l.Fid).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO fid_registrations`).
		WithArgs(l.Fid, l.IdentityPublicKey, l.SigningPublicKey, l.Signature,
			l.Created, l.IsSigningKeyValid, l.SigningKeyLastValidatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.UpsertNewer(context.Background(), l))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFidLinkRepo_UpsertNewer_UpdatesWhenNewer(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFidLinkRepo(db)

	older := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l := sampleLink(older.Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created FROM fid_registrations WHERE fid=\$1 FOR UPDATE`).
		WithArgs(l.Fid).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(older))
	mock.ExpectExec(`UPDATE fid_registrations`).
		WithArgs(l.Fid, l.IdentityPublicKey, l.SigningPublicKey, l.Signature,
			l.Created, l.IsSigningKeyValid, l.SigningKeyLastValidatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.UpsertNewer(context.Background(), l))
}

func TestFidLinkRepo_UpsertNewer_RejectsStale(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFidLinkRepo(db)

	newer := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	l := sampleLink(newer.Add(-time.Hour))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created FROM fid_registrations WHERE fid=\$1 FOR UPDATE`).
		WithArgs(l.Fid).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(newer))
	mock.ExpectRollback()

	require.ErrorIs(t, r.UpsertNewer(context.Background(), l), errs.ErrStaleWrite)
}

func TestFidLinkRepo_UpsertNewer_EqualTimestampAccepted(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFidLinkRepo(db)

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := sampleLink(ts)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created FROM fid_registrations WHERE fid=\$1 FOR UPDATE`).
		WithArgs(l.Fid).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(ts))
	mock.ExpectExec(`UPDATE fid_registrations`).
		WithArgs(l.Fid, l.IdentityPublicKey, l.SigningPublicKey, l.Signature,
			l.Created, l.IsSigningKeyValid, l.SigningKeyLastValidatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.UpsertNewer(context.Background(), l))
}

func TestFidLinkRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFidLinkRepo(db)

	mock.ExpectQuery(`SELECT fid, identity_public_key`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(context.Background(), 42)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFidLinkRepo_ListByIdentity(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFidLinkRepo(db)

	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE identity_public_key=\$1 AND is_signing_key_valid`).
		WithArgs("idpub").
		WillReturnRows(pgxmock.NewRows([]string{
			"fid", "identity_public_key", "signing_public_key", "signature",
			"created", "is_signing_key_valid", "signing_key_last_validated_at",
		}).
			AddRow(int64(1), "idpub", "s1", "sig1", ts, true, ts).
			AddRow(int64(9), "idpub", "s2", "sig2", ts, true, ts))

	links, err := r.ListByIdentity(context.Background(), "idpub")
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, int64(1), links[0].Fid)
	require.Equal(t, int64(9), links[1].Fid)
}
