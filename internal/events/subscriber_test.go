package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/docsync/internal/catalog"
	"github.com/alfredjeanlab/docsync/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// newBus connects a publisher and a subscriber to a fresh embedded server.
func newBus(t *testing.T) (*NATSPublisher, *NATSSubscriber) {
	t.Helper()
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })
	sub, err := NewNATSSubscriber(url, discardLogger())
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Message{}
}

func TestNATSSubscriber_RecordEvents(t *testing.T) {
	pub, sub := newBus(t)
	cat := catalog.New()
	ctx := context.Background()

	ch, cancel, err := sub.Subscribe(TopicRecords)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	saved := model.NewRecord(cat.SimpleObject, map[string]any{"id": int64(5)})
	if err := PublishSaved(ctx, pub, saved); err != nil {
		t.Fatalf("PublishSaved: %v", err)
	}
	DeleteHook(pub, discardLogger())(ctx, model.NewRecord(cat.Tag, map[string]any{"id": int64(6)}))

	for _, want := range []struct {
		subject string
		event   RecordSaved
	}{
		{"docsync.record.saved.app_simpleobject", RecordSaved{DocType: "app_simpleobject", ID: "5"}},
		{"docsync.record.deleted.app_tag", RecordSaved{DocType: "app_tag", ID: "6"}},
	} {
		msg := receive(t, ch)
		if msg.Subject != want.subject {
			t.Errorf("subject = %q, want %q", msg.Subject, want.subject)
		}
		var got RecordSaved
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", msg.Data, err)
		}
		if got != want.event {
			t.Errorf("event = %+v, want %+v", got, want.event)
		}
	}
}

func TestNATSSubscriber_DocTypeScoped(t *testing.T) {
	pub, sub := newBus(t)
	cat := catalog.New()
	ctx := context.Background()

	ch, cancel, err := sub.Subscribe(Subject(TopicRecordSaved, "app_tag"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	for _, r := range []*model.Record{
		model.NewRecord(cat.SimpleObject, map[string]any{"id": int64(1)}),
		model.NewRecord(cat.Tag, map[string]any{"id": int64(2)}),
	} {
		if err := PublishSaved(ctx, pub, r); err != nil {
			t.Fatalf("PublishSaved: %v", err)
		}
	}

	msg := receive(t, ch)
	if msg.Subject != "docsync.record.saved.app_tag" {
		t.Errorf("subject = %q, want the tag subject only", msg.Subject)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected event on %s", extra.Subject)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSSubscriber_SyncEvents(t *testing.T) {
	pub, sub := newBus(t)

	ch, cancel, err := sub.Subscribe(All(TopicIndexSynced))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	want := IndexSynced{
		RunID:    "sync-abc",
		Index:    "docsync",
		Version:  2,
		Created:  true,
		Previous: []string{"docsync_0001"},
		Conflict: "mapper [color] of different type",
		Indexed:  40,
	}
	if err := PublishSynced(context.Background(), pub, want); err != nil {
		t.Fatalf("PublishSynced: %v", err)
	}

	msg := receive(t, ch)
	if msg.Subject != "docsync.index.synced.docsync" {
		t.Errorf("subject = %q", msg.Subject)
	}
	var got IndexSynced
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	_, sub := newBus(t)

	ch, cancel, err := sub.Subscribe(TopicRecords)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()
	// Calling cancel twice should not panic.
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CancelDuringDeletes(t *testing.T) {
	pub, sub := newBus(t)
	cat := catalog.New()

	ch, cancel, err := sub.Subscribe(TopicRecords)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	hook := DeleteHook(pub, discardLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 100 {
			hook(context.Background(), model.NewRecord(cat.Tag, map[string]any{"id": int64(i)}))
		}
		pub.conn.Flush()
	}()

	// Cancel while events are arriving; must not panic.
	cancel()
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_DropsWhenBehind(t *testing.T) {
	pub, sub := newBus(t)
	cat := catalog.New()

	_, cancel, err := sub.Subscribe(All(TopicRecordSaved))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	// Nobody reads the channel.
	const extra = 10
	for i := range subscriptionBuffer + extra {
		r := model.NewRecord(cat.Tag, map[string]any{"id": int64(i)})
		if err := PublishSaved(context.Background(), pub, r); err != nil {
			t.Fatalf("PublishSaved: %v", err)
		}
	}
	pub.conn.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for sub.Dropped() < extra {
		if time.Now().After(deadline) {
			t.Fatalf("Dropped() = %d, want %d", sub.Dropped(), extra)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := sub.Dropped(); got != extra {
		t.Errorf("Dropped() = %d, want %d", got, extra)
	}
}

func TestNATSSubscriber_Connected(t *testing.T) {
	_, sub := newBus(t)
	var _ Subscriber = sub
	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
	if name := sub.conn.Opts.Name; name != "docsync-watch" {
		t.Errorf("connection name = %q, want docsync-watch", name)
	}
}
