package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// setupTestDB prepares the projects schema in a throwaway database.
// Skips when TEST_DB_DSN is not set; individual TEST_DB_* vars also work.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		host := os.Getenv("TEST_DB_HOST")
		port := os.Getenv("TEST_DB_PORT")
		user := os.Getenv("TEST_DB_USER")
		password := os.Getenv("TEST_DB_PASSWORD")
		dbname := os.Getenv("TEST_DB_NAME")
		if host != "" && port != "" && user != "" && dbname != "" {
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
				host, port, user, password, dbname)
		}
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping integration test")
	}

	// schema setup goes through database/sql so a failure here reads
	// differently from a repository failure
	setup, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer setup.Close()

	_, err = setup.Exec(`
CREATE TABLE IF NOT EXISTS projects (
    id                 UUID PRIMARY KEY,
    owner_id           TEXT        NOT NULL,
    name               TEXT        NOT NULL,
    status             TEXT        NOT NULL DEFAULT 'PENDING',
    status_message     TEXT        NOT NULL DEFAULT '',
    source_input       TEXT        NOT NULL DEFAULT '',
    persona_document   TEXT,
    brand_palette      JSONB,
    generated_code_ref TEXT,
    qa_report          TEXT,
    security_report    TEXT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	require.NoError(t, err)
	_, err = setup.Exec(`TRUNCATE projects;`)
	require.NoError(t, err)

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRepository_CreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	repo := New(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, "alice", "Recipe App")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, "Project created. Awaiting source input.", created.StatusMessage)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Nil(t, got.BrandPalette)
	assert.Nil(t, got.PersonaDocument)
}

func TestRepository_GetMissing(t *testing.T) {
	pool := setupTestDB(t)
	repo := New(pool)

	_, err := repo.Get(context.Background(), "11111111-1111-1111-1111-111111111111")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_MutatePersistsArtifacts(t *testing.T) {
	pool := setupTestDB(t)
	repo := New(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, "alice", "Recipe App")
	require.NoError(t, err)

	persona := "# Persona\n\nAlex, 29, home cook."
	updated, err := repo.Mutate(ctx, created.ID, func(p *domain.Project) error {
		p.Status = domain.StatusAnalysisComplete
		p.StatusMessage = "Market analysis complete. Ready for design."
		p.PersonaDocument = &persona
		p.BrandPalette = &domain.BrandPalette{
			Primary: "#0062FF", Secondary: "#FFC107",
			TextLight: "#FFFFFF", TextDark: "#212121", Background: "#F5F5F5",
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnalysisComplete, got.Status)
	require.NotNil(t, got.PersonaDocument)
	assert.Equal(t, persona, *got.PersonaDocument)
	require.NotNil(t, got.BrandPalette)
	assert.Equal(t, "#0062FF", got.BrandPalette.Primary)
}

func TestRepository_MutateErrorWritesNothing(t *testing.T) {
	pool := setupTestDB(t)
	repo := New(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, "alice", "Recipe App")
	require.NoError(t, err)

	_, err = repo.Mutate(ctx, created.ID, func(p *domain.Project) error {
		p.Status = domain.StatusFailed
		return domain.ErrStaleTransition
	})
	require.ErrorIs(t, err, domain.ErrStaleTransition)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestRepository_MutateSerializesWriters(t *testing.T) {
	pool := setupTestDB(t)
	repo := New(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, "alice", "Recipe App")
	require.NoError(t, err)

	// concurrent increments through the locked read-modify-write must not
	// lose any update
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, created.ID, func(p *domain.Project) error {
				p.SourceInput += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.SourceInput, writers)
}

func TestRepository_ListCompletedBetween(t *testing.T) {
	pool := setupTestDB(t)
	repo := New(pool)
	ctx := context.Background()

	done, err := repo.Create(ctx, "alice", "Done App")
	require.NoError(t, err)
	_, err = repo.Mutate(ctx, done.ID, func(p *domain.Project) error {
		p.Status = domain.StatusCompleted
		return nil
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, "alice", "Pending App")
	require.NoError(t, err)

	now := time.Now().Add(time.Minute)
	items, err := repo.ListCompletedBetween(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, done.ID, items[0].ID)
}
