package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/unimail/pkg/models"
)

func openInbox(t *testing.T, d *fakeDialer, accountID int64) Session {
	t.Helper()
	s, err := d.Open(context.Background(), &models.Account{ID: accountID}, FolderInbox)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMoveFallsBackToCopyOnSecondCandidate(t *testing.T) {
	d := newFakeDialer()
	mb := newFakeMailbox("Trash", "[Gmail]/Trash")
	mb.copyErr["Trash"] = errors.New("NO [OVERQUOTA] quota exceeded")
	d.mailboxes[1] = mb
	msg := mb.add(FolderInbox, &fakeMessage{subject: "bye", from: "x", date: at(0)})

	m := NewMover(NewFolderResolver(nil), discardLogger())
	out := m.Move(context.Background(), openInbox(t, d, 1), msg.uid, FolderTrash)

	require.NoError(t, out.Err)
	assert.True(t, out.Success)
	assert.Equal(t, "[Gmail]/Trash", out.UsedFolder)
	assert.Equal(t, PhaseCopy, out.Phase)
	assert.Empty(t, mb.uids(FolderInbox))
	assert.Len(t, mb.uids("[Gmail]/Trash"), 1)
	assert.Empty(t, mb.uids("Trash"))

	// Every MOVE failed before the first copy was tried.
	var phases []MovePhase
	for _, a := range out.Attempts {
		phases = append(phases, a.Phase)
	}
	candidates := NewFolderResolver(nil).Resolve(FolderTrash)
	require.Len(t, out.Attempts, len(candidates)+1)
	for _, p := range phases[:len(candidates)] {
		assert.Equal(t, PhaseMove, p)
	}
	assert.Equal(t, PhaseCopy, phases[len(candidates)])
}

func TestMovePrefersAtomicMove(t *testing.T) {
	d := newFakeDialer()
	mb := newFakeMailbox("Junk")
	mb.supportsMove = true
	d.mailboxes[1] = mb
	msg := mb.add(FolderInbox, &fakeMessage{subject: "spam", from: "x", date: at(0)})

	out := NewMover(NewFolderResolver(nil), discardLogger()).Move(context.Background(), openInbox(t, d, 1), msg.uid, FolderSpam)

	assert.True(t, out.Success)
	assert.Equal(t, PhaseMove, out.Phase)
	assert.Equal(t, "Junk", out.UsedFolder)
	assert.Empty(t, out.Attempts)
	assert.Equal(t, []uint32{msg.uid}, mb.uids("Junk"))
	assert.Empty(t, mb.uids(FolderInbox))
}

func TestMoveNoCandidateExists(t *testing.T) {
	d := newFakeDialer()
	mb := newFakeMailbox()
	d.mailboxes[1] = mb
	msg := mb.add(FolderInbox, &fakeMessage{subject: "keep", from: "x", date: at(0)})
	s := openInbox(t, d, 1)

	out := NewMover(NewFolderResolver(nil), discardLogger()).Move(context.Background(), s, msg.uid, FolderSpam)

	assert.False(t, out.Success)
	candidates := NewFolderResolver(nil).Resolve(FolderSpam)
	assert.Equal(t, candidates, out.Tried)
	assert.Len(t, out.Attempts, 2*len(candidates))
	assert.True(t, IsFolderNotFound(out.Err))
	assert.Nil(t, out.PartialErr)

	assert.Equal(t, []uint32{msg.uid}, mb.uids(FolderInbox))
	_, still := mb.find(FolderInbox, msg.uid)
	assert.NotContains(t, still.flags, `\Deleted`)
	assert.Equal(t, FolderInbox, s.Folder())
}

func TestMoveCopiedButNotRemoved(t *testing.T) {
	d := newFakeDialer()
	mb := newFakeMailbox("Spam")
	mb.deleteErr = errors.New("NO permission denied")
	d.mailboxes[1] = mb
	msg := mb.add(FolderInbox, &fakeMessage{subject: "stuck", from: "x", date: at(0)})

	out := NewMover(NewFolderResolver(nil), discardLogger()).Move(context.Background(), openInbox(t, d, 1), msg.uid, FolderSpam)

	assert.False(t, out.Success)
	require.Error(t, out.PartialErr)
	assert.Equal(t, out.PartialErr, out.Err)
	assert.Equal(t, "Spam", out.UsedFolder)
	assert.Equal(t, PhaseCopy, out.Phase)
	assert.True(t, IsOperationError(out.Err))

	// The copy stands and iteration stopped at the first copy that landed.
	assert.Len(t, mb.uids("Spam"), 1)
	assert.Equal(t, []uint32{msg.uid}, mb.uids(FolderInbox))
}

func TestMoveCopyFailuresAreOperationErrors(t *testing.T) {
	d := newFakeDialer()
	mb := newFakeMailbox("Trash")
	mb.copyErr["Trash"] = errors.New("NO server busy")
	d.mailboxes[1] = mb
	msg := mb.add(FolderInbox, &fakeMessage{subject: "x", from: "x", date: at(0)})

	out := NewMover(NewFolderResolver(nil), discardLogger()).Move(context.Background(), openInbox(t, d, 1), msg.uid, FolderTrash)

	assert.False(t, out.Success)
	assert.True(t, IsOperationError(out.Err))
	assert.False(t, IsFolderNotFound(out.Err))
	assert.Contains(t, out.Err.Error(), "server busy")
}

func TestMoveCancelled(t *testing.T) {
	d := newFakeDialer()
	d.mailboxes[1] = newFakeMailbox("Trash")
	msg := d.mailboxes[1].add(FolderInbox, &fakeMessage{subject: "x", from: "x", date: at(0)})
	s := openInbox(t, d, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := NewMover(NewFolderResolver(nil), discardLogger()).Move(ctx, s, msg.uid, FolderTrash)

	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, []uint32{msg.uid}, d.mailboxes[1].uids(FolderInbox))
}

// The counter and the mover must settle on the same literal spam folder.
func TestSpamCandidateConsistency(t *testing.T) {
	store := &fakeStore{}
	store.addAccount(1, 1, "user@example.org")
	d := newFakeDialer()
	mb := newFakeMailbox("Junk E-mail", "Bulk Mail")
	d.mailboxes[1] = mb
	mb.add("Junk E-mail", &fakeMessage{subject: "old spam", from: "x", date: at(0)})
	msg := mb.add(FolderInbox, &fakeMessage{subject: "new spam", from: "x", date: at(1)})
	resolver := NewFolderResolver(nil)

	counts, err := NewUnseenCounter(store, d, resolver, 2, discardLogger()).CountUnread(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, counts.ByAccount, 1)
	assert.Equal(t, "Junk E-mail", counts.ByAccount[0].SpamFolder)
	assert.Equal(t, 1, counts.ByAccount[0].Spam)
	assert.Equal(t, 1, counts.Inbox)

	out := NewMover(resolver, discardLogger()).Move(context.Background(), openInbox(t, d, 1), msg.uid, FolderSpam)
	require.True(t, out.Success)
	assert.Equal(t, "Junk E-mail", out.UsedFolder)
	assert.Empty(t, mb.uids("Bulk Mail"))
}
