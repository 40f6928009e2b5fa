package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pigeonchat/pigeon/internal/client/cache"
	"github.com/pigeonchat/pigeon/internal/model"
)

// fakeFetcher serves canned history and records which call was made.
type fakeFetcher struct {
	full      []model.Message
	since     []model.Message
	err       error
	fullCalls int
	sinceFrom []int64
}

func (f *fakeFetcher) Conversation(_ context.Context, _ string) ([]model.Message, error) {
	f.fullCalls++
	return f.full, f.err
}

func (f *fakeFetcher) ConversationSince(_ context.Context, _ string, since int64) ([]model.Message, error) {
	f.sinceFrom = append(f.sinceFrom, since)
	return f.since, f.err
}

func testEngine(t *testing.T, fetcher *fakeFetcher) (*Engine, *cache.Cache) {
	t.Helper()
	c := cache.New(t.TempDir())
	return New("self", c, fetcher, zap.NewNop()), c
}

func msg(id string, from, to string, at int64) model.Message {
	return model.Message{ID: id, SenderID: from, ReceiverID: to, Text: "t-" + id, CreatedAt: at}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestLoadMergesCacheAndFetch(t *testing.T) {
	m1 := msg("m1", "self", "other", 1000)
	m2 := msg("m2", "other", "self", 2000)
	m3 := msg("m3", "self", "other", 3000)

	fetcher := &fakeFetcher{since: []model.Message{m2, m3}}
	e, c := testEngine(t, fetcher)
	if err := c.SaveConversation("other", []model.Message{m1, m3}); err != nil {
		t.Fatal(err)
	}

	e.SetSelectedConversation("other")
	got, err := e.LoadConversation(context.Background(), "other")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"m1", "m2", "m3"}
	if len(got) != 3 || got[0].ID != "m1" || got[1].ID != "m2" || got[2].ID != "m3" {
		t.Errorf("merged ids = %v, want %v", ids(got), want)
	}
	if len(fetcher.sinceFrom) != 1 || fetcher.sinceFrom[0] != 3000 {
		t.Errorf("since calls = %v, want [3000]", fetcher.sinceFrom)
	}
	if fetcher.fullCalls != 0 {
		t.Errorf("full fetch called %d times with a non-empty cache", fetcher.fullCalls)
	}

	// Merge result must be persisted.
	persisted := c.LoadConversation("other")
	if len(persisted) != 3 {
		t.Errorf("persisted %d messages, want 3", len(persisted))
	}
}

func TestLoadEmptyCacheFetchesFull(t *testing.T) {
	m1 := msg("m1", "other", "self", 1000)
	fetcher := &fakeFetcher{full: []model.Message{m1}}
	e, _ := testEngine(t, fetcher)

	e.SetSelectedConversation("other")
	got, err := e.LoadConversation(context.Background(), "other")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("got = %v, want [m1]", ids(got))
	}
	if fetcher.fullCalls != 1 || len(fetcher.sinceFrom) != 0 {
		t.Errorf("fullCalls = %d, sinceFrom = %v; want exactly one full fetch", fetcher.fullCalls, fetcher.sinceFrom)
	}
}

// blockingFetcher parks every fetch until release is closed, so tests
// can observe engine state while a fetch is in flight.
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
	fetched []model.Message
}

func (f *blockingFetcher) Conversation(_ context.Context, _ string) ([]model.Message, error) {
	close(f.entered)
	<-f.release
	return f.fetched, nil
}

func (f *blockingFetcher) ConversationSince(_ context.Context, _ string, _ int64) ([]model.Message, error) {
	close(f.entered)
	<-f.release
	return f.fetched, nil
}

func TestLoadSurfacesCacheBeforeFetchResolves(t *testing.T) {
	m1 := msg("m1", "self", "other", 1000)
	m2 := msg("m2", "other", "self", 2000)
	fetcher := &blockingFetcher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		fetched: []model.Message{m2},
	}
	c := cache.New(t.TempDir())
	if err := c.SaveConversation("other", []model.Message{m1}); err != nil {
		t.Fatal(err)
	}
	e := New("self", c, fetcher, zap.NewNop())

	e.SetSelectedConversation("other")
	done := make(chan []model.Message, 1)
	go func() {
		got, err := e.LoadConversation(context.Background(), "other")
		if err != nil {
			t.Errorf("LoadConversation() error = %v", err)
		}
		done <- got
	}()
	<-fetcher.entered

	// The cached copy must be readable while the server has not
	// answered yet.
	read := make(chan []model.Message, 1)
	go func() { read <- e.Messages() }()
	select {
	case got := <-read:
		if len(got) != 1 || got[0].ID != "m1" {
			t.Errorf("mid-fetch Messages() = %v, want cached [m1]", ids(got))
		}
	case <-time.After(time.Second):
		t.Fatal("Messages() blocked while a fetch was in flight")
	}

	close(fetcher.release)
	select {
	case got := <-done:
		if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
			t.Errorf("merged ids = %v, want [m1 m2]", ids(got))
		}
	case <-time.After(time.Second):
		t.Fatal("LoadConversation never returned")
	}
}

func TestPushDuringFetchSurvivesMerge(t *testing.T) {
	m1 := msg("m1", "self", "other", 1000)
	m2 := msg("m2", "other", "self", 2000)
	m3 := msg("m3", "other", "self", 3000)
	fetcher := &blockingFetcher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		fetched: []model.Message{m3},
	}
	c := cache.New(t.TempDir())
	if err := c.SaveConversation("other", []model.Message{m1}); err != nil {
		t.Fatal(err)
	}
	e := New("self", c, fetcher, zap.NewNop())

	e.SetSelectedConversation("other")
	done := make(chan []model.Message, 1)
	go func() {
		got, _ := e.LoadConversation(context.Background(), "other")
		done <- got
	}()
	<-fetcher.entered

	// A push landing mid-fetch must not be clobbered by the merge.
	if !e.IngestPush(m2) {
		t.Fatal("mid-fetch push not ingested")
	}

	close(fetcher.release)
	select {
	case got := <-done:
		if len(got) != 3 || got[0].ID != "m1" || got[1].ID != "m2" || got[2].ID != "m3" {
			t.Errorf("merged ids = %v, want [m1 m2 m3]", ids(got))
		}
	case <-time.After(time.Second):
		t.Fatal("LoadConversation never returned")
	}
	persisted := c.LoadConversation("other")
	if len(persisted) != 3 {
		t.Errorf("persisted %d messages, want 3", len(persisted))
	}
}

func TestLoadFallsBackToCacheOnFetchError(t *testing.T) {
	m1 := msg("m1", "self", "other", 1000)
	fetcher := &fakeFetcher{err: errors.New("server down")}
	e, c := testEngine(t, fetcher)
	if err := c.SaveConversation("other", []model.Message{m1}); err != nil {
		t.Fatal(err)
	}

	e.SetSelectedConversation("other")
	got, err := e.LoadConversation(context.Background(), "other")
	if err == nil {
		t.Error("fetch failure should surface an error")
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("got = %v, want cached [m1]", ids(got))
	}
}

func TestLoadNoCacheNoFetchIsError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("server down")}
	e, _ := testEngine(t, fetcher)

	e.SetSelectedConversation("other")
	got, err := e.LoadConversation(context.Background(), "other")
	if err == nil {
		t.Error("want error when both cache and fetch are empty-handed")
	}
	if len(got) != 0 {
		t.Errorf("got = %v, want nothing", ids(got))
	}
}

func TestIngestPushOpenConversation(t *testing.T) {
	e, _ := testEngine(t, &fakeFetcher{})
	e.SetSelectedConversation("other")
	e.AppendSent(msg("m1", "self", "other", 1000))

	pushed := msg("m2", "other", "self", 500)
	if !e.IngestPush(pushed) {
		t.Error("IngestPush should report a change")
	}
	// Out-of-order push is re-sorted into place.
	got := e.Messages()
	if len(got) != 2 || got[0].ID != "m2" || got[1].ID != "m1" {
		t.Errorf("messages = %v, want [m2 m1]", ids(got))
	}
	// Unread untouched for the open conversation.
	if e.UnreadFor("other") != 0 {
		t.Errorf("unread = %d, want 0", e.UnreadFor("other"))
	}
	// Duplicate push is ignored.
	if e.IngestPush(pushed) {
		t.Error("duplicate push should not report a change")
	}
	if len(e.Messages()) != 2 {
		t.Errorf("messages = %v after duplicate push", ids(e.Messages()))
	}
}

func TestIngestPushOtherConversationIncrementsUnread(t *testing.T) {
	e, c := testEngine(t, &fakeFetcher{})
	e.SetSelectedConversation("other")

	e.IngestPush(msg("m1", "third", "self", 1000))
	e.IngestPush(msg("m2", "third", "self", 2000))
	if e.UnreadFor("third") != 2 {
		t.Errorf("unread = %d, want 2", e.UnreadFor("third"))
	}

	// Counts survive a restart.
	e2 := New("self", c, &fakeFetcher{}, zap.NewNop())
	if e2.UnreadFor("third") != 2 {
		t.Errorf("reloaded unread = %d, want 2", e2.UnreadFor("third"))
	}

	// Selecting the conversation zeroes and persists the count.
	e2.SetSelectedConversation("third")
	if e2.UnreadFor("third") != 0 {
		t.Errorf("unread after select = %d, want 0", e2.UnreadFor("third"))
	}
	e3 := New("self", c, &fakeFetcher{}, zap.NewNop())
	if e3.UnreadFor("third") != 0 {
		t.Errorf("reloaded unread after select = %d, want 0", e3.UnreadFor("third"))
	}
}

func TestIngestPushSelfToSelfNoUnread(t *testing.T) {
	e, _ := testEngine(t, &fakeFetcher{})
	e.SetSelectedConversation("other")

	if e.IngestPush(msg("m1", "self", "self", 1000)) {
		t.Error("self-to-self push outside the open conversation should not change state")
	}
	if e.UnreadFor("self") != 0 {
		t.Errorf("unread[self] = %d, want 0", e.UnreadFor("self"))
	}
}

func TestIngestPushUnrelatedIgnored(t *testing.T) {
	e, _ := testEngine(t, &fakeFetcher{})
	if e.IngestPush(msg("m1", "third", "fourth", 1000)) {
		t.Error("push not involving the user should be ignored")
	}
}

func TestIngestDeliveryConfirmation(t *testing.T) {
	e, c := testEngine(t, &fakeFetcher{})
	e.SetSelectedConversation("other")
	e.AppendSent(msg("m1", "self", "other", 1000))

	if !e.IngestDeliveryConfirmation("m1", "other", 1500) {
		t.Error("confirmation for a cached message should report a change")
	}
	got := e.Messages()
	if got[0].DeliveredAt == nil || *got[0].DeliveredAt != 1500 {
		t.Errorf("DeliveredAt = %v, want 1500", got[0].DeliveredAt)
	}
	persisted := c.LoadConversation("other")
	if persisted[0].DeliveredAt == nil || *persisted[0].DeliveredAt != 1500 {
		t.Errorf("persisted DeliveredAt = %v, want 1500", persisted[0].DeliveredAt)
	}

	// Stamping is first-wins.
	if e.IngestDeliveryConfirmation("m1", "other", 9999) {
		t.Error("second confirmation should be a no-op")
	}
	if got := e.Messages(); *got[0].DeliveredAt != 1500 {
		t.Errorf("DeliveredAt = %d after second confirmation, want 1500", *got[0].DeliveredAt)
	}
}

func TestIngestDeliveryConfirmationUnknownMessage(t *testing.T) {
	e, _ := testEngine(t, &fakeFetcher{})
	if e.IngestDeliveryConfirmation("nope", "other", 1500) {
		t.Error("unknown message should be a no-op")
	}
}

func TestAppendSentClosedConversation(t *testing.T) {
	e, c := testEngine(t, &fakeFetcher{})
	e.SetSelectedConversation("other")
	e.AppendSent(msg("m1", "self", "third", 1000))

	if len(e.Messages()) != 0 {
		t.Errorf("open conversation = %v, want empty", ids(e.Messages()))
	}
	if persisted := c.LoadConversation("third"); len(persisted) != 1 {
		t.Errorf("persisted = %v, want [m1]", ids(persisted))
	}
}
