package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbot/internal/datex"
	logx "hwbot/pkg/logx"
)

func date(y int, m time.Month, d int) datex.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"sqlite", func(t *testing.T) Store {
			st, err := Open(Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
		{"file", func(t *testing.T) Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "hw.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
	}
}

func insert(t *testing.T, st Store, subject, title string, due datex.Date) Notice {
	t.Helper()
	n, err := st.InsertNotice(context.Background(), NewNotice{SubjectID: subject, Title: title, DueDate: due})
	require.NoError(t, err)
	return n
}

func titles(ns []Notice) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Title)
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("InsertAssignsIDs", func(t *testing.T) {
				st := b.open(t)
				defer st.Close()
				uid := int64(42)
				n, err := st.InsertNotice(ctx, NewNotice{SubjectID: "math", Title: "Essay", DueDate: date(2099, 1, 1), CreatedBy: &uid})
				require.NoError(t, err)
				assert.Positive(t, n.ID)
				require.NotNil(t, n.CreatedBy)
				assert.Equal(t, uid, *n.CreatedBy)
				assert.False(t, n.CreatedAt.IsZero())

				got, err := st.ListAll(ctx, 0)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "Essay", got[0].Title)
				assert.Equal(t, "", got[0].Description)
				assert.Equal(t, date(2099, 1, 1), got[0].DueDate)
				require.NotNil(t, got[0].CreatedBy)
			})

			t.Run("ListByDateExactAndNewestFirst", func(t *testing.T) {
				st := b.open(t)
				defer st.Close()
				insert(t, st, "math", "a", date(2099, 3, 1))
				insert(t, st, "cs", "b", date(2099, 3, 2))
				insert(t, st, "math", "c", date(2099, 3, 1))

				got, err := st.ListByDate(ctx, date(2099, 3, 1))
				require.NoError(t, err)
				assert.Equal(t, []string{"c", "a"}, titles(got))

				got, err = st.ListByDate(ctx, date(2099, 3, 3))
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("ListAllOrderAndLimit", func(t *testing.T) {
				st := b.open(t)
				defer st.Close()
				insert(t, st, "math", "late", date(2099, 5, 1))
				insert(t, st, "math", "early", date(2099, 4, 1))
				insert(t, st, "cs", "early2", date(2099, 4, 1))

				got, err := st.ListAll(ctx, 0)
				require.NoError(t, err)
				assert.Equal(t, []string{"early2", "early", "late"}, titles(got))

				got, err = st.ListAll(ctx, 2)
				require.NoError(t, err)
				assert.Equal(t, []string{"early2", "early"}, titles(got))

				got, err = st.ListBySubject(ctx, "math", 0)
				require.NoError(t, err)
				assert.Equal(t, []string{"early", "late"}, titles(got))
			})

			t.Run("DeleteDueBeforeIsStrict", func(t *testing.T) {
				st := b.open(t)
				defer st.Close()
				insert(t, st, "math", "old", date(2024, 1, 9))
				insert(t, st, "math", "today", date(2024, 1, 10))
				insert(t, st, "math", "future", date(2024, 1, 11))

				n, err := st.DeleteDueBefore(ctx, date(2024, 1, 10))
				require.NoError(t, err)
				assert.Equal(t, 1, n)

				got, err := st.ListAll(ctx, 0)
				require.NoError(t, err)
				assert.Equal(t, []string{"today", "future"}, titles(got))

				n, err = st.DeleteDueBefore(ctx, date(2024, 1, 10))
				require.NoError(t, err)
				assert.Equal(t, 0, n)
			})

			t.Run("Subscribers", func(t *testing.T) {
				st := b.open(t)
				defer st.Close()
				require.NoError(t, st.UpsertSubscriber(ctx, 7, "Ann", ""))
				require.NoError(t, st.UpsertSubscriber(ctx, 3, "Bob", "bob"))
				require.NoError(t, st.SetSubscribed(ctx, 7, false))

				ids, err := st.ListSubscribedIDs(ctx)
				require.NoError(t, err)
				assert.Equal(t, []int64{3}, ids)

				require.NoError(t, st.UpsertSubscriber(ctx, 7, "Ann", "ann"))
				ids, err = st.ListSubscribedIDs(ctx)
				require.NoError(t, err)
				assert.Equal(t, []int64{3, 7}, ids)

				err = st.SetSubscribed(ctx, 99, false)
				assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
			})

			t.Run("Audit", func(t *testing.T) {
				st := b.open(t)
				defer st.Close()
				require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "notice.add", Target: "math"}))
			})
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hw.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	insert(t, st, "math", "kept", date(2099, 1, 2))
	insert(t, st, "math", "gone", date(2000, 1, 1))
	_, err = st.DeleteDueBefore(ctx, date(2099, 1, 1))
	require.NoError(t, err)
	require.NoError(t, st.UpsertSubscriber(ctx, 5, "Eve", ""))
	// Simulate a crash: drop the handle without compacting.
	fs := st.(*fileStore)
	require.NoError(t, fs.journal.Close())
	require.NoError(t, fs.audit.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	got, err := st.ListAll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, titles(got))

	n := insert(t, st, "cs", "next", date(2099, 1, 3))
	assert.Equal(t, int64(3), n.ID)

	ids, err := st.ListSubscribedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo", Path: "x"}, logx.Logger{})
	require.Error(t, err)

	_, err = Open(Config{Driver: "none"}, logx.Nop())
	assert.ErrorIs(t, err, ErrDisabled)
}
