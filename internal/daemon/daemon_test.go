package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/pigeonchat/pigeon/internal/delivery"
	"github.com/pigeonchat/pigeon/internal/httpapi"
	"github.com/pigeonchat/pigeon/internal/media"
	"github.com/pigeonchat/pigeon/internal/model"
	"github.com/pigeonchat/pigeon/internal/realtime"
	"github.com/pigeonchat/pigeon/internal/store"
	"go.uber.org/zap"
)

// TestDaemonLifecycle assembles the server stack by hand, starts it on
// an ephemeral port, and drives the REST surface end to end.
func TestDaemonLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := store.Open(filepath.Join(tmpDir, "pigeon.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	_, aliceTok, err := db.CreateUser("alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, _, err := db.CreateUser("bob", "Bob")
	if err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	hub := realtime.NewHub(logger)
	proto := delivery.New(db, hub, logger, 500*time.Millisecond)
	uploader, err := media.NewLocalUploader(filepath.Join(tmpDir, "media"))
	if err != nil {
		t.Fatal(err)
	}
	h := httpapi.NewHandlers(db, hub, proto, uploader, httpapi.NewTokenAuthenticator(db), logger)

	srv, err := NewServer(Params{Profile: "test", ListenAddr: "127.0.0.1:0"}, h.Router(uploader.Dir()), logger)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	base := "http://" + srv.Addr()

	req, err := http.NewRequest(http.MethodGet, base+"/users", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+aliceTok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /users status = %d", resp.StatusCode)
	}
	var users []model.User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].ID != bob.ID {
		t.Errorf("users = %v, want [bob]", users)
	}
}
