package email

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap"

	"github.com/mixelka/unimail/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMessage struct {
	uid       uint32
	subject   string
	from      string
	date      time.Time
	flags     []string
	structure *imap.BodyStructure
	parts     map[string][]byte
}

func (m *fakeMessage) clone() *fakeMessage {
	c := *m
	c.flags = slices.Clone(m.flags)
	return &c
}

func (m *fakeMessage) imapMessage(seq uint32, withStructure bool) *imap.Message {
	msg := &imap.Message{
		SeqNum:       seq,
		Uid:          m.uid,
		Flags:        slices.Clone(m.flags),
		InternalDate: m.date,
		Size:         100,
		Envelope: &imap.Envelope{
			Date:    m.date,
			Subject: m.subject,
			From:    []*imap.Address{{PersonalName: "", MailboxName: m.from, HostName: "example.org"}},
		},
	}
	if withStructure {
		msg.BodyStructure = m.structure
	}
	return msg
}

// fakeMailbox is the server-side state of one account, shared by all its sessions.
type fakeMailbox struct {
	mu           sync.Mutex
	folders      map[string][]*fakeMessage
	nextUID      uint32
	supportsMove bool
	openErr      error
	openDelay    time.Duration
	copyErr      map[string]error
	deleteErr    error
}

func newFakeMailbox(folders ...string) *fakeMailbox {
	mb := &fakeMailbox{folders: map[string][]*fakeMessage{"INBOX": nil}, nextUID: 1000, copyErr: map[string]error{}}
	for _, f := range folders {
		mb.folders[f] = nil
	}
	return mb
}

func (mb *fakeMailbox) add(folder string, m *fakeMessage) *fakeMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if m.uid == 0 {
		mb.nextUID++
		m.uid = mb.nextUID
	}
	mb.folders[folder] = append(mb.folders[folder], m)
	return m
}

func (mb *fakeMailbox) uids(folder string) []uint32 {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []uint32
	for _, m := range mb.folders[folder] {
		out = append(out, m.uid)
	}
	return out
}

func (mb *fakeMailbox) find(folder string, uid uint32) (int, *fakeMessage) {
	for i, m := range mb.folders[folder] {
		if m.uid == uid {
			return i, m
		}
	}
	return -1, nil
}

type fakeDialer struct {
	mailboxes map[int64]*fakeMailbox
	opened    atomic.Int32
	closed    atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{mailboxes: map[int64]*fakeMailbox{}}
}

func (d *fakeDialer) Open(ctx context.Context, acc *models.Account, folder string) (Session, error) {
	mb := d.mailboxes[acc.ID]
	if mb == nil {
		return nil, &ConnectionError{AccountID: acc.ID, Err: io.EOF}
	}
	if mb.openDelay > 0 {
		select {
		case <-time.After(mb.openDelay):
		case <-ctx.Done():
			return nil, &ConnectionError{AccountID: acc.ID, Err: ctx.Err()}
		}
	}
	if mb.openErr != nil {
		return nil, &ConnectionError{AccountID: acc.ID, Err: mb.openErr}
	}

	mb.mu.Lock()
	_, ok := mb.folders[folder]
	mb.mu.Unlock()
	if !ok {
		return nil, &ConnectionError{AccountID: acc.ID, Err: ErrNoSuchFolder}
	}

	d.opened.Add(1)
	return &fakeSession{d: d, mb: mb, accountID: acc.ID, folder: folder}, nil
}

type fakeSession struct {
	d         *fakeDialer
	mb        *fakeMailbox
	accountID int64
	folder    string
	closed    bool
}

func (s *fakeSession) AccountID() int64 { return s.accountID }
func (s *fakeSession) Folder() string   { return s.folder }

func (s *fakeSession) Messages() uint32 {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	return uint32(len(s.mb.folders[s.folder]))
}

func (s *fakeSession) Reselect(_ context.Context, folder string) bool {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	if _, ok := s.mb.folders[folder]; !ok {
		return false
	}
	s.folder = folder
	return true
}

func (s *fakeSession) FetchHeaders(_ context.Context, from, to uint32) ([]*imap.Message, error) {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	var out []*imap.Message
	for i, m := range s.mb.folders[s.folder] {
		seq := uint32(i + 1)
		if seq >= from && seq <= to {
			out = append(out, m.imapMessage(seq, false))
		}
	}
	return out, nil
}

func (s *fakeSession) FetchStructure(_ context.Context, uid uint32) (*imap.Message, error) {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	i, m := s.mb.find(s.folder, uid)
	if m == nil {
		return nil, nil
	}
	return m.imapMessage(uint32(i+1), true), nil
}

func (s *fakeSession) FetchPart(_ context.Context, uid uint32, part string) ([]byte, error) {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	_, m := s.mb.find(s.folder, uid)
	if m == nil || m.parts[part] == nil {
		return nil, &OperationError{Op: "fetch part", Folder: s.folder, UID: uid, Err: ErrMessageNotFound}
	}
	return m.parts[part], nil
}

func (s *fakeSession) SearchUnseen(context.Context) ([]uint32, error) {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	var out []uint32
	for _, m := range s.mb.folders[s.folder] {
		if !slices.Contains(m.flags, imap.SeenFlag) {
			out = append(out, m.uid)
		}
	}
	return out, nil
}

func (s *fakeSession) StoreSeen(_ context.Context, uids []uint32, seen bool) error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	for _, uid := range uids {
		_, m := s.mb.find(s.folder, uid)
		if m == nil {
			continue
		}
		m.flags = slices.DeleteFunc(m.flags, func(f string) bool { return f == imap.SeenFlag })
		if seen {
			m.flags = append(m.flags, imap.SeenFlag)
		}
	}
	return nil
}

func (s *fakeSession) Move(_ context.Context, uid uint32, dest string) error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	if !s.mb.supportsMove {
		return &OperationError{Op: "move", Folder: dest, UID: uid, Err: ErrMoveUnsupported}
	}
	if _, ok := s.mb.folders[dest]; !ok {
		return &OperationError{Op: "move", Folder: dest, UID: uid, Err: ErrNoSuchFolder}
	}
	i, m := s.mb.find(s.folder, uid)
	if m == nil {
		return &OperationError{Op: "move", Folder: dest, UID: uid, Err: ErrMessageNotFound}
	}
	s.mb.folders[s.folder] = slices.Delete(s.mb.folders[s.folder], i, i+1)
	s.mb.folders[dest] = append(s.mb.folders[dest], m)
	return nil
}

func (s *fakeSession) Copy(_ context.Context, uid uint32, dest string) error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	if _, ok := s.mb.folders[dest]; !ok {
		return &OperationError{Op: "copy", Folder: dest, UID: uid, Err: ErrNoSuchFolder}
	}
	if err := s.mb.copyErr[dest]; err != nil {
		return &OperationError{Op: "copy", Folder: dest, UID: uid, Err: err}
	}
	_, m := s.mb.find(s.folder, uid)
	if m == nil {
		return &OperationError{Op: "copy", Folder: dest, UID: uid, Err: ErrMessageNotFound}
	}
	c := m.clone()
	s.mb.nextUID++
	c.uid = s.mb.nextUID
	s.mb.folders[dest] = append(s.mb.folders[dest], c)
	return nil
}

func (s *fakeSession) MarkDeleted(_ context.Context, uid uint32) error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	if s.mb.deleteErr != nil {
		return &OperationError{Op: "mark as deleted", Folder: s.folder, UID: uid, Err: s.mb.deleteErr}
	}
	_, m := s.mb.find(s.folder, uid)
	if m == nil {
		return &OperationError{Op: "mark as deleted", Folder: s.folder, UID: uid, Err: ErrMessageNotFound}
	}
	m.flags = append(m.flags, imap.DeletedFlag)
	return nil
}

func (s *fakeSession) Expunge(context.Context) error {
	s.mb.mu.Lock()
	defer s.mb.mu.Unlock()
	s.mb.folders[s.folder] = slices.DeleteFunc(s.mb.folders[s.folder], func(m *fakeMessage) bool {
		return slices.Contains(m.flags, imap.DeletedFlag)
	})
	return nil
}

func (s *fakeSession) Close() error {
	if !s.closed {
		s.closed = true
		s.d.closed.Add(1)
	}
	return nil
}

// fakeStore serves accounts from memory. Every account gets password "pw".
type fakeStore struct {
	mu       sync.Mutex
	accounts []*models.Account
	synced   map[int64]time.Time
}

func (s *fakeStore) addAccount(id, userID int64, email string) *models.Account {
	a := &models.Account{ID: id, UserID: userID, Email: email, IsActive: true}
	s.accounts = append(s.accounts, a)
	return a
}

func (s *fakeStore) ListAccounts(_ context.Context, userID int64, activeOnly bool) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range s.accounts {
		if a.UserID == userID && (a.IsActive || !activeOnly) {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetAccountWithCredential(_ context.Context, userID, accountID int64) (*models.Account, error) {
	for _, a := range s.accounts {
		if a.ID == accountID && a.UserID == userID {
			c := *a
			c.Password = "pw"
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateLastSync(_ context.Context, accountID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synced == nil {
		s.synced = map[int64]time.Time{}
	}
	s.synced[accountID] = at
	return nil
}

// textBody is a single-part text/plain structure.
func textBody(subtype, encoding, charset string) *imap.BodyStructure {
	return &imap.BodyStructure{
		MIMEType:    "text",
		MIMESubType: subtype,
		Params:      map[string]string{"charset": charset},
		Encoding:    encoding,
	}
}

var baseDate = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseDate.Add(time.Duration(minutes) * time.Minute)
}
