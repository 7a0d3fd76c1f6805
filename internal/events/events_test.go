package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/docsync/internal/catalog"
	"github.com/alfredjeanlab/docsync/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubjects(t *testing.T) {
	if got := Subject(TopicRecordSaved, "app_tag"); got != "docsync.record.saved.app_tag" {
		t.Errorf("Subject() = %q", got)
	}
	if got := All(TopicIndexSynced); got != "docsync.index.synced.>" {
		t.Errorf("All() = %q", got)
	}

	for _, tc := range []struct {
		subject  string
		wantRoot string
		wantName string
		wantOK   bool
	}{
		{"docsync.record.saved.app_tag", TopicRecordSaved, "app_tag", true},
		{"docsync.record.deleted.app_simpleobject", TopicRecordDeleted, "app_simpleobject", true},
		{"docsync.index.synced.docsync", TopicIndexSynced, "docsync", true},
		{"docsync.record.saved", "", "", false},
		{"docsync.record.saved.", "", "", false},
		{"docsync.record.touched.app_tag", "", "", false},
	} {
		root, name, ok := ParseSubject(tc.subject)
		if root != tc.wantRoot || name != tc.wantName || ok != tc.wantOK {
			t.Errorf("ParseSubject(%q) = %q, %q, %v; want %q, %q, %v",
				tc.subject, root, name, ok, tc.wantRoot, tc.wantName, tc.wantOK)
		}
	}
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	ctx := context.Background()

	if err := pub.Publish(ctx, Subject(TopicRecordSaved, "app_tag"), RecordSaved{DocType: "app_tag", ID: "1"}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	for _, tc := range []struct {
		name    string
		subject string
		event   any
	}{
		{"wildcard subject", TopicRecords, RecordSaved{}},
		{"empty subject", "", RecordSaved{}},
		{"unencodable payload", Subject(TopicIndexSynced, "docsync"), map[string]any{"ch": make(chan int)}},
	} {
		if err := pub.Publish(ctx, tc.subject, tc.event); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	// Subscribe with a plain connection to see exactly what goes on the wire.
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	subject := Subject(TopicRecordSaved, "app_simpleobject")
	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(subject, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := RecordSaved{DocType: "app_simpleobject", ID: "7"}
	if err := pub.Publish(context.Background(), subject, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got RecordSaved
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != event {
			t.Errorf("got %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_RejectsBadEvents(t *testing.T) {
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	if err := pub.Publish(context.Background(), TopicRecords, RecordSaved{}); err == nil {
		t.Error("Publish on a wildcard subject: expected error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, Subject(TopicRecordSaved, "app_tag"), RecordSaved{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish with cancelled context = %v, want context.Canceled", err)
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}

	// Publishing after close should fail.
	err = pub.Publish(context.Background(), Subject(TopicRecordSaved, "app_tag"), RecordSaved{})
	if err == nil {
		t.Error("expected error publishing after close")
	}
}

type recordingPublisher struct {
	subjects []string
	events   []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event any) error {
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestPublishSaved(t *testing.T) {
	cat := catalog.New()
	for _, tc := range []struct {
		name        string
		record      *model.Record
		wantSubject string
		want        []any
	}{
		{
			name:        "indexable",
			record:      model.NewRecord(cat.SimpleObject, map[string]any{"id": int64(3)}),
			wantSubject: "docsync.record.saved.app_simpleobject",
			want:        []any{RecordSaved{DocType: "app_simpleobject", ID: "3"}},
		},
		{
			name:   "not indexable",
			record: model.NewRecord(cat.DumbTag, map[string]any{"id": int64(4)}),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			if err := PublishSaved(context.Background(), pub, tc.record); err != nil {
				t.Fatalf("PublishSaved: %v", err)
			}
			if len(pub.events) != len(tc.want) {
				t.Fatalf("published %d events, want %d", len(pub.events), len(tc.want))
			}
			for i := range tc.want {
				if pub.events[i] != tc.want[i] {
					t.Errorf("event %d = %+v, want %+v", i, pub.events[i], tc.want[i])
				}
				if pub.subjects[i] != tc.wantSubject {
					t.Errorf("subject %d = %q, want %q", i, pub.subjects[i], tc.wantSubject)
				}
			}
		})
	}
}

func TestDeleteHook(t *testing.T) {
	cat := catalog.New()
	pub := &recordingPublisher{err: errors.New("bus down")}
	hook := DeleteHook(pub, discardLogger())

	// Publish errors are swallowed.
	hook(context.Background(), model.NewRecord(cat.SimpleObject, map[string]any{"id": int64(9)}))
	hook(context.Background(), model.NewRecord(cat.DumbTag, map[string]any{"id": int64(1)}))

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	want := RecordDeleted{DocType: "app_simpleobject", ID: "9"}
	wantSubject := "docsync.record.deleted.app_simpleobject"
	if pub.subjects[0] != wantSubject || pub.events[0] != want {
		t.Errorf("got %s %+v, want %s %+v", pub.subjects[0], pub.events[0], wantSubject, want)
	}
}
