// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentdeck/internal/model"
)

func metaAt(id, title string, updated time.Time) model.Meta {
	return model.Meta{
		ID:        id,
		Title:     title,
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

func TestEmptyStore(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Count())
	assert.Nil(t, s.Active())
	assert.False(t, s.Synced())
	assert.Empty(t, s.Sessions())
}

func TestEnsureActiveCreates(t *testing.T) {
	s := New()

	sess, created := s.EnsureActive()
	require.NotNil(t, sess)
	assert.True(t, created)
	assert.Equal(t, model.DefaultTitle, sess.Title)
	assert.Equal(t, sess.ID, s.ActiveID())
	assert.True(t, s.IsLoaded(sess.ID), "locally created session needs no load")

	// Second call returns the same session.
	again, created := s.EnsureActive()
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, 1, s.Count())
}

func TestSetActiveUnknown(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.SetActive("ghost"), ErrSessionNotFound)
}

func TestAppendMessageToDeletedSession(t *testing.T) {
	s := New()
	sess := model.NewSession("Doomed")
	s.Add(sess)

	require.NoError(t, s.AppendMessage(sess.ID, model.NewUserMessage("hi")))
	require.NoError(t, s.Delete(sess.ID))

	// The late write from a turn that outlived its session is rejected.
	err := s.AppendMessage(sess.ID, model.NewAssistantMessage("too late"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, s.Count())
}

func TestSetMessagesMarksLoaded(t *testing.T) {
	s := New()
	now := time.Now()
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{metaAt("sess_a", "A", now)}))

	assert.False(t, s.IsLoaded("sess_a"), "server-listed session starts unloaded")

	msgs := []*model.Message{model.NewUserMessage("q"), model.NewAssistantMessage("a")}
	require.NoError(t, s.SetMessages("sess_a", msgs))
	assert.True(t, s.IsLoaded("sess_a"))

	sess, ok := s.Get("sess_a")
	require.True(t, ok)
	assert.Equal(t, 2, sess.MessageCount())
}

func TestDeleteDemotesActive(t *testing.T) {
	s := New()
	now := time.Now()
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{
		metaAt("sess_old", "Old", now.Add(-2*time.Hour)),
		metaAt("sess_mid", "Mid", now.Add(-time.Hour)),
		metaAt("sess_new", "New", now),
	}))
	require.NoError(t, s.SetActive("sess_new"))

	require.NoError(t, s.Delete("sess_new"))
	assert.Equal(t, "sess_mid", s.ActiveID(), "most recent survivor becomes active")

	require.NoError(t, s.Delete("sess_mid"))
	require.NoError(t, s.Delete("sess_old"))
	assert.Equal(t, "", s.ActiveID())
}

func TestSessionsOrderedByUpdatedAt(t *testing.T) {
	s := New()
	now := time.Now()
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{
		metaAt("sess_b", "B", now.Add(-time.Minute)),
		metaAt("sess_c", "C", now),
		metaAt("sess_a", "A", now.Add(-time.Hour)),
	}))

	sessions := s.Sessions()
	require.Len(t, sessions, 3)
	assert.Equal(t, "sess_c", sessions[0].ID)
	assert.Equal(t, "sess_b", sessions[1].ID)
	assert.Equal(t, "sess_a", sessions[2].ID)
}

func TestApplyRefreshMergesMetadata(t *testing.T) {
	s := New()
	now := time.Now()
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{metaAt("sess_a", "Before", now)}))
	require.NoError(t, s.SetMessages("sess_a", []*model.Message{model.NewUserMessage("kept")}))
	require.NoError(t, s.SetActive("sess_a"))

	// Second refresh renames the session. The loaded transcript survives.
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{metaAt("sess_a", "After", now.Add(time.Minute))}))

	sess, ok := s.Get("sess_a")
	require.True(t, ok)
	assert.Equal(t, "After", sess.Title)
	require.Equal(t, 1, sess.MessageCount())
	assert.Equal(t, "kept", sess.Messages[0].Content)
	assert.True(t, s.IsLoaded("sess_a"))
}

func TestApplyRefreshRemovesMissingSessions(t *testing.T) {
	s := New()
	now := time.Now()
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{
		metaAt("sess_a", "A", now),
		metaAt("sess_b", "B", now.Add(-time.Minute)),
	}))
	require.NoError(t, s.SetActive("sess_a"))

	// The server no longer reports sess_a: it was deleted elsewhere.
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{metaAt("sess_b", "B", now.Add(-time.Minute))}))

	_, ok := s.Get("sess_a")
	assert.False(t, ok)
	assert.Equal(t, "sess_b", s.ActiveID(), "active demoted to a survivor")
}

func TestApplyRefreshKeepsUnregisteredSession(t *testing.T) {
	s := New()

	// A refresh is issued, then the user sends before it completes: the
	// active session is created locally and its registration is still in
	// flight when the (empty) listing lands.
	gen := s.NextGeneration()
	sess, created := s.EnsureActive()
	require.True(t, created)
	require.NoError(t, s.AppendMessage(sess.ID, model.NewUserMessage("hello")))

	require.True(t, s.ApplyRefresh(gen, nil))

	kept, ok := s.Get(sess.ID)
	require.True(t, ok, "unregistered session must survive the refresh")
	assert.Equal(t, sess.ID, s.ActiveID())
	require.Equal(t, 1, kept.MessageCount())
	assert.Equal(t, "hello", kept.Messages[0].Content)
}

func TestApplyRefreshEndsPendingWhenListed(t *testing.T) {
	s := New()
	now := time.Now()

	sess := model.NewSession("Local")
	s.Add(sess)
	assert.True(t, s.IsPending(sess.ID))

	// The server reports it: the exemption ends, and a later listing
	// without it removes it like any other session.
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{metaAt(sess.ID, "Local", now)}))
	assert.False(t, s.IsPending(sess.ID))

	require.True(t, s.ApplyRefresh(s.NextGeneration(), nil))
	_, ok := s.Get(sess.ID)
	assert.False(t, ok)
}

func TestMarkRegisteredEndsExemption(t *testing.T) {
	s := New()

	sess, _ := s.EnsureActive()
	s.MarkRegistered(sess.ID)
	assert.False(t, s.IsPending(sess.ID))

	require.True(t, s.ApplyRefresh(s.NextGeneration(), nil))
	_, ok := s.Get(sess.ID)
	assert.False(t, ok)
}

func TestApplyRefreshDropsStaleGeneration(t *testing.T) {
	s := New()
	now := time.Now()

	genOld := s.NextGeneration()
	genNew := s.NextGeneration()

	// Newer listing lands first.
	require.True(t, s.ApplyRefresh(genNew, []model.Meta{metaAt("sess_new", "New", now)}))

	// The older in-flight listing must not clobber it.
	applied := s.ApplyRefresh(genOld, []model.Meta{metaAt("sess_stale", "Stale", now.Add(-time.Hour))})
	assert.False(t, applied)

	_, ok := s.Get("sess_stale")
	assert.False(t, ok)
	_, ok = s.Get("sess_new")
	assert.True(t, ok)
}

func TestApplyRefreshSetsSynced(t *testing.T) {
	s := New()
	assert.False(t, s.Synced())
	require.True(t, s.ApplyRefresh(s.NextGeneration(), nil))
	assert.True(t, s.Synced())
}

func TestApplyRefreshEmptyListing(t *testing.T) {
	s := New()
	now := time.Now()
	require.True(t, s.ApplyRefresh(s.NextGeneration(), []model.Meta{metaAt("sess_a", "A", now)}))
	require.NoError(t, s.SetActive("sess_a"))

	require.True(t, s.ApplyRefresh(s.NextGeneration(), nil))
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, "", s.ActiveID())
	assert.Nil(t, s.Active())
}
