package guest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, CreateTables(context.Background(), db))

	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *bun.DB, email string) *User {
	t.Helper()

	user := &User{
		ID:       uuid.New(),
		Email:    email,
		Role:     RoleGuest,
		IsActive: false,
	}
	_, err := db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func TestTokenStoreCreateLongToken(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	user := seedUser(t, db, "jane@example.com")

	token, err := store.Create(context.Background(), user, "", false)
	require.NoError(t, err)

	assert.Len(t, token.Token, longTokenLen)
	assert.Equal(t, "jane@example.com", token.Email)
	assert.Equal(t, user.ID, token.UserID)
	assert.False(t, token.Confirmed)
	assert.NotNil(t, token.CreatedAt)
}

func TestTokenStoreCreatePersistsNewUser(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	user := &User{Email: "fresh@example.com", Role: RoleGuest}

	token, err := store.Create(context.Background(), user, "", false)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, user.ID, token.UserID)

	count, err := db.NewSelect().Model((*User)(nil)).Where("email = ?", "fresh@example.com").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTokenStoreShortCodeAvoidsCollisions(t *testing.T) {
	db := setupTestDB(t)

	user := seedUser(t, db, "jane@example.com")

	// First candidate collides with the seeded token, the second is free.
	random := &scriptedRandom{ints: []int{111111, 222222}}
	store := NewTokenStore(db, WithTokenRandomSource(random))

	taken := &GuestToken{
		ID:     uuid.New(),
		UserID: user.ID,
		Email:  user.Email,
		Token:  "111111",
	}
	_, err := db.NewInsert().Model(taken).Exec(context.Background())
	require.NoError(t, err)

	token, err := store.Create(context.Background(), user, "", true)
	require.NoError(t, err)

	assert.Equal(t, "222222", token.Token)
}

func TestTokenStoreFindLatestByEmail(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	user := seedUser(t, db, "jane@example.com")

	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)
	for _, tok := range []*GuestToken{
		{ID: uuid.New(), UserID: user.ID, Email: user.Email, Token: "older12345", CreatedAt: &older},
		{ID: uuid.New(), UserID: user.ID, Email: user.Email, Token: "newer12345", CreatedAt: &newer},
	} {
		_, err := db.NewInsert().Model(tok).Exec(context.Background())
		require.NoError(t, err)
	}

	latest, err := store.FindLatestByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, latest)

	assert.Equal(t, "newer12345", latest.Token)
	require.NotNil(t, latest.User, "latest token must carry its user")
	assert.Equal(t, user.ID, latest.User.ID)
}

func TestTokenStoreCreateReset(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	user := seedUser(t, db, "jane@example.com")

	reset, err := store.CreateReset(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, TokenPurposeReset, reset.Purpose)

	found, err := store.FindByToken(context.Background(), reset.Token)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, TokenPurposeReset, found.Purpose)

	// Reset tokens never stand in for the confirmation state.
	latest, err := store.FindLatestByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestTokenStoreFindLatestByEmailMissing(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	latest, err := store.FindLatestByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestTokenStoreFindByTokenMissing(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	token, err := store.FindByToken(context.Background(), "missing123")
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestTokenStoreConsumeIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	user := seedUser(t, db, "jane@example.com")
	token, err := store.Create(context.Background(), user, "", false)
	require.NoError(t, err)

	require.NoError(t, store.Consume(context.Background(), token))
	assert.True(t, token.Confirmed)

	require.NoError(t, store.Consume(context.Background(), token))

	stored, err := store.FindByToken(context.Background(), token.Token)
	require.NoError(t, err)
	assert.True(t, stored.Confirmed)
}

func TestTokenStorePurgeExpired(t *testing.T) {
	db := setupTestDB(t)
	store := NewTokenStore(db)

	user := seedUser(t, db, "jane@example.com")

	stale := time.Now().Add(-10 * 24 * time.Hour)
	fresh := time.Now()
	for _, tok := range []*GuestToken{
		{ID: uuid.New(), UserID: user.ID, Email: user.Email, Token: "stale12345", CreatedAt: &stale},
		{ID: uuid.New(), UserID: user.ID, Email: user.Email, Token: "staledone1", Confirmed: true, CreatedAt: &stale},
		{ID: uuid.New(), UserID: user.ID, Email: user.Email, Token: "fresh12345", CreatedAt: &fresh},
	} {
		_, err := db.NewInsert().Model(tok).Exec(context.Background())
		require.NoError(t, err)
	}

	purged, err := store.PurgeExpired(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)

	// Confirmed tokens are kept as the record of a completed confirmation.
	assert.Equal(t, int64(1), purged)

	remaining, err := db.NewSelect().Model((*GuestToken)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestResetAgreements(t *testing.T) {
	db := setupTestDB(t)

	guest1 := seedUser(t, db, "one@example.com")
	guest2 := seedUser(t, db, "two@example.com")
	admin := &User{ID: uuid.New(), Email: "admin@example.com", Role: RoleGlobalAdmin, AgreedTerms: true}
	_, err := db.NewInsert().Model(admin).Exec(context.Background())
	require.NoError(t, err)

	for _, u := range []*User{guest1, guest2} {
		u.AgreedTerms = true
		_, err := db.NewUpdate().Model(u).WherePK().Exec(context.Background())
		require.NoError(t, err)
	}

	n, err := ResetAgreements(context.Background(), db, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var admins []User
	err = db.NewSelect().Model(&admins).Where("user_role = ?", RoleGlobalAdmin).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.True(t, admins[0].AgreedTerms, "non guest accounts are untouched")
}

func TestUserStoreRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewUserStore(db)

	missing, err := store.FindByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user := &User{Email: "jane@example.com", Role: RoleGuest}
	created, err := store.Create(context.Background(), user)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	found, err := store.FindByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	found.Name = "Jane"
	require.NoError(t, store.Save(context.Background(), found))

	again, err := store.FindByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane", again.Name)
}

func TestUserStoreCreateDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	store := NewUserStore(db)

	_, err := store.Create(context.Background(), &User{Email: "jane@example.com", Role: RoleGuest})
	require.NoError(t, err)

	_, err = store.Create(context.Background(), &User{Email: "jane@example.com", Role: RoleGuest})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestUserStoreDeleteRemovesTokens(t *testing.T) {
	db := setupTestDB(t)
	store := NewUserStore(db)
	tokens := NewTokenStore(db)

	user := seedUser(t, db, "jane@example.com")
	_, err := tokens.Create(context.Background(), user, "", false)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), user))

	left, err := db.NewSelect().Model((*GuestToken)(nil)).Where("user_id = ?", user.ID).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}

func TestVerifyPasswordAgainstStoredHash(t *testing.T) {
	db := setupTestDB(t)
	store := NewUserStore(db)

	hash, err := HashPassword("sup3r-secret")
	require.NoError(t, err)

	user := &User{Email: "jane@example.com", Role: RoleGuest, PasswordHash: hash}

	assert.True(t, store.VerifyPassword(user, "sup3r-secret"))
	assert.False(t, store.VerifyPassword(user, "wrong"))
}
