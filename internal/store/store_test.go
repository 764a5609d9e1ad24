package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
)

func TestCreateGetDelete(t *testing.T) {
	s := NewSessionStore()

	sess := s.Create("owner-1")
	if sess.ID == "" {
		t.Fatal("expected non-empty session id")
	}
	if sess.Stage != domain.StageInitial {
		t.Errorf("new session stage = %v, want INITIAL", sess.Stage)
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ID != sess.ID || got.OwnerID != "owner-1" {
		t.Errorf("Get() = %+v", got)
	}

	s.Delete(sess.ID)
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewSessionStore()
	sess := s.Create("owner-1")

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Stage = domain.StageImage
	got.AddUserMessage("tamper")

	again, err := s.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Stage != domain.StageInitial || len(again.Messages) != 0 {
		t.Error("mutating a Get copy leaked into the store")
	}
}

func TestWithSessionSerializesMutations(t *testing.T) {
	s := NewSessionStore()
	sess := s.Create("owner-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithSession(sess.ID, func(ss *domain.Session) error {
				ss.AddUserMessage("hi")
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 50 {
		t.Errorf("messages = %d, want 50", len(got.Messages))
	}
}

func TestWithSessionUnknownID(t *testing.T) {
	s := NewSessionStore()
	err := s.WithSession("nope", func(*domain.Session) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListFiltersByOwnerNewestFirst(t *testing.T) {
	s := NewSessionStore()
	a := s.Create("alice")
	time.Sleep(2 * time.Millisecond)
	b := s.Create("alice")
	s.Create("bob")

	got := s.List("alice")
	if len(got) != 2 {
		t.Fatalf("List(alice) = %d sessions, want 2", len(got))
	}
	if got[0].ID != b.ID || got[1].ID != a.ID {
		t.Errorf("List order = %s, %s; want newest first", got[0].ID, got[1].ID)
	}
}

func TestExpired(t *testing.T) {
	s := NewSessionStore()
	old := s.Create("alice")
	_ = s.WithSession(old.ID, func(ss *domain.Session) error {
		ss.UpdatedAt = time.Now().Add(-2 * time.Hour)
		return nil
	})
	s.Create("alice")

	ids := s.Expired(time.Hour)
	if len(ids) != 1 || ids[0] != old.ID {
		t.Errorf("Expired() = %v, want [%s]", ids, old.ID)
	}

	cleanupIdleSessions(s, time.Hour, nil)
	if _, err := s.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expected idle session removed by sweep")
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}
