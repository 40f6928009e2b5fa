package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pigeonchat/pigeon/internal/model"
)

func TestAuthHeaderAndDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		switch r.URL.Path {
		case "/users":
			json.NewEncoder(w).Encode([]model.User{{ID: "u2", Username: "bob"}})
		case "/conversation":
			if r.URL.Query().Get("since") != "5000" {
				t.Errorf("since = %q, want 5000", r.URL.Query().Get("since"))
			}
			json.NewEncoder(w).Encode([]model.Message{{ID: "m2", SenderID: "u2", ReceiverID: "u1", CreatedAt: 6000}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123")

	users, err := c.Users(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Errorf("users = %v, want [bob]", users)
	}

	msgs, err := c.ConversationSince(context.Background(), "u2", 5000)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m2" {
		t.Errorf("msgs = %v, want [m2]", msgs)
	}
}

func TestErrorBodySurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "text or image required"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.SendMessage(context.Background(), "u2", SendRequest{})
	if err == nil {
		t.Fatal("SendMessage should fail on 400")
	}
	want := "sending message: text or image required (status 400)"
	if err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
}
