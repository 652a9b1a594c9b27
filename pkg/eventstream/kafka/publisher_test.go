package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/truthstore/pkg/eventstream"
	"github.com/papercomputeco/truthstore/pkg/eventstream/kafka"
	"github.com/papercomputeco/truthstore/pkg/logger"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *fakeWriter
		p *kafka.Publisher
	)

	BeforeEach(func() {
		w = &fakeWriter{}
		p = kafka.NewTestPublisher(w, "truthstore.events", logger.Nop())
	})

	It("validates its configuration", func() {
		_, err := kafka.NewPublisher(kafka.Config{Topic: "t"}, logger.Nop())
		Expect(err).To(HaveOccurred())
		_, err = kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}}, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("writes events as JSON keyed by owner and key", func() {
		event := eventstream.NewSnapshotRecomputed("owner-1", "acme", eventstream.SnapshotRecomputed{
			EntityType: "company", Trigger: "observation",
		}, time.Now())

		Expect(p.Publish(context.Background(), event)).To(Succeed())
		Expect(w.msgs).To(HaveLen(1))
		Expect(string(w.msgs[0].Key)).To(Equal("owner-1/acme"))
		Expect(w.msgs[0].Headers[0].Key).To(Equal("event_type"))
		Expect(string(w.msgs[0].Headers[0].Value)).To(Equal(eventstream.EventTypeSnapshotRecomputed))

		var decoded eventstream.Event
		Expect(json.Unmarshal(w.msgs[0].Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Snapshot.EntityType).To(Equal("company"))
	})

	It("rejects nil events", func() {
		Expect(p.Publish(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("wraps writer errors", func() {
		w.err = errors.New("broker down")
		event := eventstream.NewMergeCompleted("o", eventstream.MergeCompleted{FromKey: "a", ToKey: "b"}, time.Now())
		Expect(p.Publish(context.Background(), event)).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())

		event := eventstream.NewMergeCompleted("o", eventstream.MergeCompleted{FromKey: "a", ToKey: "b"}, time.Now())
		Expect(p.Publish(context.Background(), event)).To(MatchError(eventstream.ErrPublisherClosed))
		Expect(w.msgs).To(BeEmpty())
		Expect(p.Close()).To(Succeed())
	})
})
