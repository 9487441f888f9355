package storage

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/tasknames"
)

var _ = Describe("SQLiteStore", func() {
	var (
		dir   string
		store *SQLiteStore
	)

	sampleEvents := []protocol.Event{
		{Tag: protocol.TagTaskSwitchedIn, Tick: 10, Timestamp: 1000, TaskID: 1, TaskName: "printTask"},
		{Tag: protocol.TagQueueSend, Tick: 12, Timestamp: 1100, TaskID: 1, AffectedObject: 40, Delay: 5, TaskName: "printTask"},
		{Tag: protocol.TagIncrementTick, Tick: 4294967295, Timestamp: 1200, TaskID: 1, AffectedObject: 0, Delay: 1},
		{Tag: protocol.TagTaskSwitchedOut, Tick: 20, Timestamp: 2000, TaskID: 1, TaskName: "printTask"},
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "rtos-trace-store")
		Expect(err).NotTo(HaveOccurred())

		store, err = OpenSQLite(filepath.Join(dir, "trace.sqlite3"), WithBatchSize(3))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	Context("writing a session", func() {
		It("should load events back in arrival order across batches", func() {
			w, err := store.StartSession("/dev/ttyUSB0", "current")
			Expect(err).NotTo(HaveOccurred())

			for _, ev := range sampleEvents {
				Expect(w.WriteEvent(ev)).To(Succeed())
			}
			Expect(w.Close()).To(Succeed())

			events, err := store.LoadEvents(w.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal(sampleEvents))
		})

		It("should keep task name rows including unparsable ones", func() {
			w, err := store.StartSession("capture.log", "auto")
			Expect(err).NotTo(HaveOccurred())

			table := tasknames.New()
			table.Add("1,printTask")
			table.Add("not-a-row")
			table.Add("1,renamed")
			Expect(WriteNames(w, table)).To(Succeed())
			Expect(w.Close()).To(Succeed())

			loaded, err := store.LoadNames(w.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Len()).To(Equal(3))

			name, ok := loaded.Lookup(1)
			Expect(ok).To(BeTrue())
			Expect(name).To(Equal("renamed"))
		})

		It("should record the exit code only for finished sessions", func() {
			finished, err := store.StartSession("a", "current")
			Expect(err).NotTo(HaveOccurred())
			Expect(finished.WriteEvent(sampleEvents[0])).To(Succeed())
			Expect(finished.FinishSession(7)).To(Succeed())

			open, err := store.StartSession("b", "legacy")
			Expect(err).NotTo(HaveOccurred())
			Expect(open.Close()).To(Succeed())

			sessions, err := store.Sessions()
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(2))

			byID := map[string]SessionInfo{}
			for _, s := range sessions {
				byID[s.ID] = s
			}

			Expect(byID[finished.ID()].ExitCode.Valid).To(BeTrue())
			Expect(byID[finished.ID()].ExitCode.Int32).To(Equal(int32(7)))
			Expect(byID[finished.ID()].EventCount).To(Equal(1))
			Expect(byID[finished.ID()].Source).To(Equal("a"))

			Expect(byID[open.ID()].ExitCode.Valid).To(BeFalse())
			Expect(byID[open.ID()].Protocol).To(Equal("legacy"))
		})

		It("should keep sessions apart", func() {
			first, err := store.StartSession("a", "current")
			Expect(err).NotTo(HaveOccurred())
			second, err := store.StartSession("b", "current")
			Expect(err).NotTo(HaveOccurred())

			Expect(first.ID()).NotTo(Equal(second.ID()))

			Expect(first.WriteEvent(sampleEvents[0])).To(Succeed())
			Expect(second.WriteEvent(sampleEvents[1])).To(Succeed())
			Expect(first.Close()).To(Succeed())
			Expect(second.Close()).To(Succeed())

			events, err := store.LoadEvents(second.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal(sampleEvents[1:2]))
		})
	})

	Context("reading", func() {
		It("should reject unknown sessions", func() {
			_, err := store.LoadEvents("nope")
			Expect(err).To(MatchError(ErrUnknownSession))

			_, err = store.LoadNames("nope")
			Expect(err).To(MatchError(ErrUnknownSession))
		})

		It("should return an empty list for a session without events", func() {
			w, err := store.StartSession("a", "current")
			Expect(err).NotTo(HaveOccurred())

			events, err := store.LoadEvents(w.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})
	})

	Context("reopening", func() {
		It("should keep data across opens", func() {
			w, err := store.StartSession("a", "current")
			Expect(err).NotTo(HaveOccurred())
			Expect(w.WriteEvent(sampleEvents[0])).To(Succeed())
			Expect(w.FinishSession(0)).To(Succeed())

			again, err := OpenSQLite(store.Path())
			Expect(err).NotTo(HaveOccurred())
			defer again.Close()

			sessions, err := again.Sessions()
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].ID).To(Equal(w.ID()))
		})
	})
})
