package sso

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configColumns() []string {
	return []string{"id", "team_id", "provider", "status", "domains", "auto_provision", "enforce_sso", "default_role", "attribute_mapping", "settings", "created_at", "updated_at"}
}

func samlConfigRow(rows *sqlmock.Rows, id string, status Status) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "team-1", "saml", string(status),
		[]byte(`["corp.com"]`), true, false, "member",
		[]byte(`{"email":"mail"}`),
		[]byte(`{"entityId":"https://idp.example.com","ssoUrl":"https://idp.example.com/sso","certificate":"PEM"}`),
		now, now)
}

func TestStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := samlConfiguration()
	cfg.Domains = []string{"corp.com", "corp.org"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sso_configurations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sso_domains").
		WithArgs(sqlmock.AnyArg(), "corp.com", sqlmock.AnyArg(), "team-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sso_domains").
		WithArgs(sqlmock.AnyArg(), "corp.org", sqlmock.AnyArg(), "team-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewStore(db).Create(cfg))
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, StatusPending, cfg.Status, "new configurations start pending")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sso_configurations").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err = NewStore(db).Create(samlConfiguration())
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateInvalid(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := samlConfiguration()
	cfg.SAML.Certificate = ""
	err = NewStore(db).Create(cfg)
	require.Error(t, err)
	assert.True(t, IsValidation(err), "no queries run for invalid input")
}

func TestStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, team_id").
		WithArgs("cfg-1").
		WillReturnRows(samlConfigRow(sqlmock.NewRows(configColumns()), "cfg-1", StatusActive))

	cfg, err := NewStore(db).Get("cfg-1")
	require.NoError(t, err)

	assert.Equal(t, "cfg-1", cfg.ID)
	assert.Equal(t, ProviderSAML, cfg.Provider)
	assert.Equal(t, StatusActive, cfg.Status)
	assert.Equal(t, []string{"corp.com"}, cfg.Domains)
	assert.Equal(t, map[string]string{"email": "mail"}, cfg.AttributeMapping)
	require.NotNil(t, cfg.SAML)
	assert.Equal(t, "https://idp.example.com", cfg.SAML.EntityID)
	assert.Nil(t, cfg.OIDC)
	assert.Nil(t, cfg.LDAP)
}

func TestStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, team_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(configColumns()))

	_, err = NewStore(db).Get("missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestStoreUpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := samlConfiguration()
	cfg.ID = "missing"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sso_configurations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = NewStore(db).Update(cfg)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreActivateDeactivatesSiblings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT team_id FROM sso_configurations").
		WithArgs("cfg-2").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectExec("UPDATE sso_configurations").
		WithArgs("inactive", "team-1", "active", "cfg-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sso_configurations").
		WithArgs("active", "cfg-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewStore(db).Activate("cfg-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sso_domains").
		WithArgs("cfg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM sso_configurations").
		WithArgs("cfg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewStore(db).Delete("cfg-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindActiveByDomain(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("JOIN sso_domains").
		WithArgs("corp.com", "active").
		WillReturnRows(samlConfigRow(sqlmock.NewRows(configColumns()), "cfg-1", StatusActive))

	cfg, err := NewStore(db).FindActiveByDomain("corp.com")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cfg-1", cfg.ID)

	mock.ExpectQuery("JOIN sso_domains").
		WithArgs("unknown.com", "active").
		WillReturnRows(sqlmock.NewRows(configColumns()))

	cfg, err = NewStore(db).FindActiveByDomain("unknown.com")
	require.NoError(t, err)
	assert.Nil(t, cfg, "unknown domains are not an error")
}
