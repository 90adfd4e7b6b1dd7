//go:build integration
// +build integration

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/testutil"
)

// TestStore_CreateAndGet_Integration tests creating and retrieving a session
func TestStore_CreateAndGet_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	// Create a session
	created, err := store.CreateSession(ctx, "Test Session", "gemini-2.5-flash")
	require.NoError(t, err, "CreateSession should not return error")
	require.NotNil(t, created, "Created session should not be nil")
	assert.NotEqual(t, uuid.Nil, created.ID, "Session ID should not be nil UUID")
	assert.Equal(t, "Test Session", created.Title)
	assert.Equal(t, "gemini-2.5-flash", created.ModelName)
	assert.NotZero(t, created.CreatedAt, "CreatedAt should be set")
	assert.NotZero(t, created.UpdatedAt, "UpdatedAt should be set")

	// Retrieve the session
	retrieved, err := store.Session(ctx, created.ID)
	require.NoError(t, err, "Session should not return error")
	require.NotNil(t, retrieved, "Retrieved session should not be nil")
	assert.Equal(t, created.ID, retrieved.ID)
	assert.Equal(t, created.Title, retrieved.Title)
	assert.Equal(t, created.ModelName, retrieved.ModelName)
	assert.Equal(t, 0, retrieved.MessageCount, "New session should have no messages")
}

// TestStore_GetMissing_Integration tests retrieving a non-existent session
func TestStore_GetMissing_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)

	_, err = store.Session(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestStore_ListSessions_Integration tests listing sessions with pagination
func TestStore_ListSessions_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	// Create multiple sessions
	for i := 0; i < 5; i++ {
		_, err := store.CreateSession(ctx, fmt.Sprintf("Session %d", i+1), "gemini-2.5-flash")
		require.NoError(t, err)
	}

	// List all sessions
	sessions, err := store.Sessions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 5)

	// Most recently updated first
	for i := 1; i < len(sessions); i++ {
		assert.False(t, sessions[i].UpdatedAt.After(sessions[i-1].UpdatedAt),
			"sessions should be ordered by updated_at DESC")
	}

	// Pagination - first 3
	sessions, err = store.Sessions(ctx, 3, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 3, "Should return exactly 3 sessions")

	// Pagination - next page
	sessions, err = store.Sessions(ctx, 3, 3)
	require.NoError(t, err)
	assert.Len(t, sessions, 2, "Should return the remaining 2 sessions")
}

// TestStore_DeleteSession_Integration tests deleting a session and its messages
func TestStore_DeleteSession_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "To Be Deleted", "gemini-2.5-flash")
	require.NoError(t, err)

	err = store.AddMessages(ctx, created.ID, []*Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, created.ID))

	// Session is gone
	_, err = store.Session(ctx, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Messages cascade
	var count int
	err = dbContainer.Pool.QueryRow(ctx,
		"SELECT count(*) FROM messages WHERE session_id = $1", created.ID).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count, "messages should be deleted with the session")

	// Deleting again reports not found
	err = store.DeleteSession(ctx, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestStore_SetTitle_Integration tests renaming a session
func TestStore_SetTitle_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "Old Title", "gemini-2.5-flash")
	require.NoError(t, err)

	require.NoError(t, store.SetTitle(ctx, created.ID, "New Title"))

	retrieved, err := store.Session(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Title", retrieved.Title)

	err = store.SetTitle(ctx, uuid.New(), "X")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestStore_AddMessages_Sequencing_Integration tests sequence number allocation
func TestStore_AddMessages_Sequencing_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "Sequencing", "gemini-2.5-flash")
	require.NoError(t, err)

	// First batch
	batch1 := []*Message{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
	}
	require.NoError(t, store.AddMessages(ctx, created.ID, batch1))
	assert.Equal(t, int64(1), batch1[0].SequenceNumber)
	assert.Equal(t, int64(2), batch1[1].SequenceNumber)
	assert.NotEqual(t, uuid.Nil, batch1[0].ID, "insert should fill message ID")
	assert.NotZero(t, batch1[0].CreatedAt, "insert should fill CreatedAt")
	assert.Equal(t, created.ID, batch1[0].SessionID)

	// Second batch continues the sequence
	batch2 := []*Message{
		{Role: RoleUser, Content: "second question"},
		{Role: RoleAssistant, Content: "second answer"},
	}
	require.NoError(t, store.AddMessages(ctx, created.ID, batch2))
	assert.Equal(t, int64(3), batch2[0].SequenceNumber)
	assert.Equal(t, int64(4), batch2[1].SequenceNumber)

	// Message count reflects both batches
	retrieved, err := store.Session(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, retrieved.MessageCount)
}

// TestStore_AddMessages_Validation_Integration tests input validation
func TestStore_AddMessages_Validation_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "Validation", "gemini-2.5-flash")
	require.NoError(t, err)

	// Unknown session
	err = store.AddMessages(ctx, uuid.New(), []*Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Invalid role
	err = store.AddMessages(ctx, created.ID, []*Message{{Role: "system", Content: "hi"}})
	assert.ErrorIs(t, err, ErrInvalidRole)

	// Nothing persisted after failed batches
	retrieved, err := store.Session(ctx, created.ID)
	require.NoError(t, err)
	assert.Zero(t, retrieved.MessageCount)
}

// TestStore_Messages_Integration tests chronological message export
func TestStore_Messages_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "Export", "gemini-2.5-flash")
	require.NoError(t, err)

	var batch []*Message
	for i := 1; i <= 6; i++ {
		role := RoleUser
		if i%2 == 0 {
			role = RoleAssistant
		}
		batch = append(batch, &Message{Role: role, Content: fmt.Sprintf("message %d", i)})
	}
	require.NoError(t, store.AddMessages(ctx, created.ID, batch))

	// Full export in chronological order
	messages, err := store.Messages(ctx, created.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, messages, 6)
	for i, msg := range messages {
		assert.Equal(t, int64(i+1), msg.SequenceNumber)
		assert.Equal(t, fmt.Sprintf("message %d", i+1), msg.Content)
	}

	// Offset pagination
	messages, err = store.Messages(ctx, created.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "message 5", messages[0].Content)
	assert.Equal(t, "message 6", messages[1].Content)
}

// TestStore_RecentMessages_Integration tests the conversation history window
func TestStore_RecentMessages_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "History Window", "gemini-2.5-flash")
	require.NoError(t, err)

	var batch []*Message
	for i := 1; i <= 10; i++ {
		role := RoleUser
		if i%2 == 0 {
			role = RoleAssistant
		}
		batch = append(batch, &Message{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	require.NoError(t, store.AddMessages(ctx, created.ID, batch))

	// Last 6 messages, oldest first
	recent, err := store.RecentMessages(ctx, created.ID, 6)
	require.NoError(t, err)
	require.Len(t, recent, 6)
	assert.Equal(t, "turn 5", recent[0].Content)
	assert.Equal(t, "turn 10", recent[5].Content)
	for i := 1; i < len(recent); i++ {
		assert.Greater(t, recent[i].SequenceNumber, recent[i-1].SequenceNumber,
			"recent messages should be in chronological order")
	}

	// Window larger than history returns everything
	recent, err = store.RecentMessages(ctx, created.ID, 100)
	require.NoError(t, err)
	assert.Len(t, recent, 10)

	// Empty session returns empty slice, not nil
	empty, err := store.CreateSession(ctx, "Empty", "gemini-2.5-flash")
	require.NoError(t, err)
	recent, err = store.RecentMessages(ctx, empty.ID, 6)
	require.NoError(t, err)
	assert.NotNil(t, recent)
	assert.Empty(t, recent)
}

// TestStore_ConcurrentAppends_Integration tests that the row lock serializes
// concurrent appends without sequence collisions.
func TestStore_ConcurrentAppends_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "Concurrent", "gemini-2.5-flash")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = store.AddMessages(ctx, created.ID, []*Message{
				{Role: RoleUser, Content: fmt.Sprintf("writer %d question", n)},
				{Role: RoleAssistant, Content: fmt.Sprintf("writer %d answer", n)},
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d failed", i)
	}

	// All messages landed with unique, gap-free sequence numbers
	messages, err := store.Messages(ctx, created.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, messages, writers*2)
	for i, msg := range messages {
		assert.Equal(t, int64(i+1), msg.SequenceNumber)
	}
}

// TestStore_Counts_Integration tests aggregate counts
func TestStore_Counts_Integration(t *testing.T) {
	dbContainer, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(dbContainer.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	sessions, messages, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, sessions)
	assert.Zero(t, messages)

	first, err := store.CreateSession(ctx, "One", "gemini-2.5-flash")
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "Two", "gemini-2.5-flash")
	require.NoError(t, err)

	require.NoError(t, store.AddMessages(ctx, first.ID, []*Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	}))

	sessions, messages, err = store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sessions)
	assert.Equal(t, int64(2), messages)
}
