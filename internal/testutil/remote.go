package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/remote"
)

// FakeRemote is an in-memory stand-in for the requisition API.
//
// Saves and deletes change the served snapshot the way the real sheet does,
// so a later fetch sees them. Failures and delays are scripted per call.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeRemote struct {
	mu          sync.Mutex
	snapshot    model.Snapshot
	fetchErrs   []error
	gate        chan struct{}
	fetches     int
	saved       []model.Requisition
	saveErr     error
	finalNumber string
	deleteErr   error
	deleted     chan string
	accounts    map[string]account
	images      map[string]string
}

type account struct {
	user     model.User
	password string
}

// NewFakeRemote creates a fake serving s.
func NewFakeRemote(s model.Snapshot) *FakeRemote {
	return &FakeRemote{
		snapshot: s.Clone(),
		deleted:  make(chan string, 64),
		accounts: make(map[string]account),
		images:   make(map[string]string),
	}
}

// SetSnapshot replaces the served records.
func (f *FakeRemote) SetSnapshot(s model.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s.Clone()
}

// SetCount serves the first n fixture records.
func (f *FakeRemote) SetCount(n int) {
	f.SetSnapshot(Requisitions(n))
}

// Count returns how many records the fake currently holds.
func (f *FakeRemote) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshot)
}

// FailNextFetch makes the next fetch return err. Calls queue up.
func (f *FakeRemote) FailNextFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErrs = append(f.fetchErrs, err)
}

// Hold makes fetches block until the returned release func is called or
// the fetch's context ends.
func (f *FakeRemote) Hold() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Fetches returns how many fetches have been made.
func (f *FakeRemote) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// FetchRequisitions returns the served snapshot as of the call.
func (f *FakeRemote) FetchRequisitions(ctx context.Context) (model.Snapshot, error) {
	f.mu.Lock()
	f.fetches++
	gate := f.gate
	var err error
	if len(f.fetchErrs) > 0 {
		err = f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
	}
	s := f.snapshot.Clone()
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &remote.Error{Kind: remote.KindNetwork, Op: "getRequisitions", Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = model.Snapshot{}
	}
	return s, nil
}

// FailSaves makes every save return err; nil restores success.
func (f *FakeRemote) FailSaves(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

// RenumberSaves makes the next successful saves report number as final.
func (f *FakeRemote) RenumberSaves(number string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalNumber = number
}

// SaveRequisition stores r, replacing any record with the same id.
func (f *FakeRemote) SaveRequisition(_ context.Context, r model.Requisition) (remote.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return remote.SaveResult{}, f.saveErr
	}
	final := r.RequisitionNumber
	if f.finalNumber != "" {
		final = f.finalNumber
		r.RequisitionNumber = final
	}
	f.saved = append(f.saved, r)
	if i := f.snapshot.IndexOf(r.ID); i >= 0 {
		f.snapshot[i] = r
	} else {
		f.snapshot = append(f.snapshot, r)
	}
	return remote.SaveResult{FinalNumber: final}, nil
}

// Saved returns every record saved so far.
func (f *FakeRemote) Saved() []model.Requisition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Requisition(nil), f.saved...)
}

// FailDeletes makes every delete return err; nil restores success.
func (f *FakeRemote) FailDeletes(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

// DeleteRequisition removes the record and reports its id on Deleted, even
// when the delete is scripted to fail.
func (f *FakeRemote) DeleteRequisition(_ context.Context, id string) error {
	f.mu.Lock()
	err := f.deleteErr
	if err == nil {
		if i := f.snapshot.IndexOf(id); i >= 0 {
			f.snapshot = append(f.snapshot[:i:i], f.snapshot[i+1:]...)
		}
	}
	f.mu.Unlock()

	select {
	case f.deleted <- id:
	default:
	}
	return err
}

// Deleted delivers the id of every delete attempt.
func (f *FakeRemote) Deleted() <-chan string {
	return f.deleted
}

// AddAccount registers an account that can log in.
func (f *FakeRemote) AddAccount(u model.User, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[u.Username] = account{user: u, password: password}
}

func rejected(op, msg string) error {
	return &remote.Error{Kind: remote.KindRejected, Op: op, Message: msg}
}

// Login checks the credentials.
func (f *FakeRemote) Login(_ context.Context, username, password string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[username]
	if !ok || a.password != password {
		return model.User{}, rejected("login", "invalid credentials")
	}
	return a.user, nil
}

// GetUsers lists the accounts in username order.
func (f *FakeRemote) GetUsers(context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]model.User, 0, len(f.accounts))
	for _, a := range f.accounts {
		users = append(users, a.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// CreateUser adds an account; duplicates are rejected.
func (f *FakeRemote) CreateUser(_ context.Context, u model.User, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[u.Username]; exists {
		return rejected("createUser", fmt.Sprintf("user %s already exists", u.Username))
	}
	f.accounts[u.Username] = account{user: u, password: password}
	return nil
}

// UpdateUser changes name and role, and the password when one is given.
func (f *FakeRemote) UpdateUser(_ context.Context, u model.User, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[u.Username]
	if !ok {
		return rejected("updateUser", "user not found")
	}
	a.user = u
	if password != "" {
		a.password = password
	}
	f.accounts[u.Username] = a
	return nil
}

// DeleteUser removes an account.
func (f *FakeRemote) DeleteUser(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[username]; !ok {
		return rejected("deleteUser", "user not found")
	}
	delete(f.accounts, username)
	return nil
}

// ChangePassword sets a new password. A non-empty oldPassword must match.
func (f *FakeRemote) ChangePassword(_ context.Context, username, newPassword, oldPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[username]
	if !ok {
		return rejected("changePassword", "user not found")
	}
	if oldPassword != "" && oldPassword != a.password {
		return rejected("changePassword", "current password is incorrect")
	}
	a.password = newPassword
	f.accounts[username] = a
	return nil
}

// SetImage makes FetchImage answer dataURL for photoURL.
func (f *FakeRemote) SetImage(photoURL, dataURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[photoURL] = dataURL
}

// FetchImage returns the image registered with SetImage.
func (f *FakeRemote) FetchImage(_ context.Context, photoURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.images[photoURL]; ok {
		return d, nil
	}
	return "", rejected("getImage", "image unavailable")
}
