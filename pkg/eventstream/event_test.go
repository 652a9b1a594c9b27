package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/eventstream"
)

var _ = Describe("Event", func() {
	now := time.Unix(1735689600, 0).UTC()

	It("marshals SnapshotRecomputed with expected top-level keys", func() {
		event := eventstream.NewSnapshotRecomputed("owner-1", "acme", eventstream.SnapshotRecomputed{
			EntityType:       "company",
			SchemaVersion:    "1.0.0",
			ObservationCount: 3,
			ComputedAt:       now,
			Trigger:          "observation",
		}, now)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKeyWithValue("event_type", eventstream.EventTypeSnapshotRecomputed))
		Expect(got).To(HaveKeyWithValue("owner_scope", "owner-1"))
		Expect(got).To(HaveKeyWithValue("key", "acme"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("snapshot"))
		Expect(got).NotTo(HaveKey("merge"))
	})

	It("keys merge events by the merge target", func() {
		event := eventstream.NewMergeCompleted("owner-1", eventstream.MergeCompleted{
			MergeID: "m1", FromKey: "a", ToKey: "b", ObservationsRewritten: 2,
		}, now)

		Expect(event.Key).To(Equal("b"))
		Expect(event.EventType).To(Equal(eventstream.EventTypeMergeCompleted))
		Expect(event.Merge.FromKey).To(Equal("a"))
		Expect(event.Snapshot).To(BeNil())
	})

	It("assigns unique prefixed event ids", func() {
		a := eventstream.NewMergeCompleted("o", eventstream.MergeCompleted{ToKey: "b"}, now)
		b := eventstream.NewMergeCompleted("o", eventstream.MergeCompleted{ToKey: "b"}, now)
		Expect(strings.HasPrefix(a.EventID, "evt_")).To(BeTrue())
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeSnapshotRecomputed).To(Equal("truthstore.snapshot.recomputed"))
		Expect(eventstream.EventTypeMergeCompleted).To(Equal("truthstore.merge.completed"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})
