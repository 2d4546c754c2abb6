package e2e_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scribe-ide/scribe/internal/event"
	"github.com/scribe-ide/scribe/internal/transport/testutil"
	"github.com/scribe-ide/scribe/pkg/types"
)

var _ = Describe("Steering", func() {
	// collectQueued records turn.queued notifications for assertions.
	collectQueued := func() func() []event.TurnQueuedData {
		var mu sync.Mutex
		var queued []event.TurnQueuedData
		unsub := event.Subscribe(event.TurnQueued, func(e event.Event) {
			if data, ok := e.Data.(event.TurnQueuedData); ok {
				mu.Lock()
				queued = append(queued, data)
				mu.Unlock()
			}
		})
		DeferCleanup(unsub)
		return func() []event.TurnQueuedData {
			mu.Lock()
			defer mu.Unlock()
			return append([]event.TurnQueuedData(nil), queued...)
		}
	}

	It("holds one steering message and submits it after the turn ends", func() {
		queued := collectQueued()

		backend.ScriptTurn(testutil.TurnScript{
			Frames:            []string{`{"type":"text_delta","content":"Restructuring. "}`},
			WaitForResolution: "hold",
			FinalFrames:       []string{`{"type":"text_delta","content":"Finished."}`},
		})
		backend.ScriptTurn(testutil.TurnScript{Frames: []string{
			`{"type":"text_delta","content":"Citations fixed."}`,
		}})

		Expect(controller.Submit(ctx, "restructure chapter 1")).To(Succeed())

		controller.QueueSteering("also check the references")
		controller.QueueSteering("actually, fix the citations first")

		Eventually(queued, 2*time.Second, 5*time.Millisecond).Should(HaveLen(2))
		Expect(queued()[0].Replaced).To(BeFalse())
		Expect(queued()[1].Replaced).To(BeTrue())
		Expect(queued()[1].Text).To(Equal("actually, fix the citations first"))

		// Only one submission so far: steering waits for the active turn.
		Expect(backend.Submits()).To(HaveLen(1))

		Expect(client.ResolveApproval(ctx, "hold", types.DecisionApprove)).To(Succeed())

		Eventually(backend.Submits, 2*time.Second, 5*time.Millisecond).Should(HaveLen(2))
		submits := backend.Submits()
		Expect(submits[1].Text).To(Equal("actually, fix the citations first"))
		// The drained submission carries the finished turn as history.
		Expect(submits[1].History).NotTo(BeEmpty())

		Eventually(func() int {
			return len(controller.Turns())
		}, 2*time.Second, 5*time.Millisecond).Should(Equal(4))
		Expect(terminalState()).To(Equal(types.TurnCompleted))
		Expect(turnText(lastAgentTurn())).To(Equal("Citations fixed."))
	})

	It("submits immediately when no turn is active", func() {
		backend.ScriptTurn(testutil.TurnScript{Frames: []string{
			`{"type":"text_delta","content":"On it."}`,
		}})

		controller.QueueSteering("expand the conclusion")

		Eventually(backend.Submits, 2*time.Second, 5*time.Millisecond).Should(HaveLen(1))
		Expect(backend.Submits()[0].Text).To(Equal("expand the conclusion"))
		Expect(terminalState()).To(Equal(types.TurnCompleted))
	})
})
