package e2e_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scribe-ide/scribe/internal/transport"
	"github.com/scribe-ide/scribe/internal/transport/testutil"
	"github.com/scribe-ide/scribe/internal/turn"
	"github.com/scribe-ide/scribe/pkg/types"
)

var _ = Describe("Turn Lifecycle", func() {
	Describe("Simple Exchange", func() {
		It("streams assistant text to completion", func() {
			backend.ScriptTurn(testutil.TurnScript{Frames: []string{
				`{"type":"text_delta","content":"The introduction "}`,
				`{"type":"text_delta","content":"now reads better."}`,
			}})

			Expect(controller.Submit(ctx, "tighten the introduction")).To(Succeed())
			Expect(terminalState()).To(Equal(types.TurnCompleted))

			agent := lastAgentTurn()
			Expect(agent.Parts).To(HaveLen(1))
			Expect(turnText(agent)).To(Equal("The introduction now reads better."))

			turns := controller.Turns()
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Role).To(Equal(types.RoleUser))
			Expect(turnText(turns[0])).To(Equal("tighten the introduction"))

			submits := backend.Submits()
			Expect(submits).To(HaveLen(1))
			Expect(submits[0].SessionID).To(Equal("sess_e2e"))
			Expect(submits[0].Text).To(Equal("tighten the introduction"))
		})

		It("rejects a second submission while a turn is active", func() {
			backend.ScriptTurn(testutil.TurnScript{
				Frames:            []string{`{"type":"text_delta","content":"Working."}`},
				WaitForResolution: "hold",
			})

			Expect(controller.Submit(ctx, "first")).To(Succeed())
			Expect(controller.Submit(ctx, "second")).To(MatchError(turn.ErrTurnActive))

			Expect(client.ResolveApproval(ctx, "hold", types.DecisionApprove)).To(Succeed())
			Expect(terminalState()).To(Equal(types.TurnCompleted))
		})
	})

	Describe("Error Handling", func() {
		It("absorbs backend error events without closing the turn", func() {
			backend.ScriptTurn(testutil.TurnScript{Frames: []string{
				`{"type":"text_delta","content":"Checking references. "}`,
				`{"type":"error","message":"bibliography index stale"}`,
				`{"type":"text_delta","content":"Recovered."}`,
			}})

			Expect(controller.Submit(ctx, "check references")).To(Succeed())
			Expect(terminalState()).To(Equal(types.TurnCompleted))
			Expect(turnText(lastAgentTurn())).To(Equal("Checking references. Recovered."))
		})

		It("marks the turn errored when submission fails", func() {
			backend.ScriptTurn(testutil.TurnScript{Status: 503, Error: "overloaded"})

			err := controller.Submit(ctx, "hello")
			Expect(err).To(HaveOccurred())

			var terr *transport.Error
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.StatusCode).To(Equal(503))

			agent := lastAgentTurn()
			Expect(agent.State).To(Equal(types.TurnErrored))
		})

		It("accepts a fresh submission after a failed one", func() {
			backend.ScriptTurn(testutil.TurnScript{Status: 503, Error: "overloaded"})
			backend.ScriptTurn(testutil.TurnScript{Frames: []string{
				`{"type":"text_delta","content":"All good now."}`,
			}})

			Expect(controller.Submit(ctx, "first")).To(HaveOccurred())
			Expect(controller.Submit(ctx, "second")).To(Succeed())
			Expect(terminalState()).To(Equal(types.TurnCompleted))
		})
	})

	Describe("Abort", func() {
		It("closes the turn, marks it, and notifies the backend", func() {
			backend.ScriptTurn(testutil.TurnScript{
				Frames: []string{
					`{"type":"text_delta","content":"Rewriting chapter 3."}`,
					`{"type":"tool_call","tool_call_id":"1","tool_name":"read_file","args":{"path":"ch3.tex"}}`,
				},
				WaitForResolution: "never",
			})

			Expect(controller.Submit(ctx, "rewrite chapter 3")).To(Succeed())
			Eventually(func() int {
				return len(lastAgentTurn().Parts)
			}, 2*time.Second, 5*time.Millisecond).Should(Equal(2))

			Expect(controller.Abort(ctx)).To(Succeed())

			agent := lastAgentTurn()
			Expect(agent.State).To(Equal(types.TurnAborted))
			Expect(turnText(agent)).To(ContainSubstring("Aborted by user"))

			// The in-flight tool call keeps its last status.
			tools := toolParts(agent)
			Expect(tools).To(HaveLen(1))
			Expect(tools[0].Call.Status).To(Equal(types.ToolRunning))

			Eventually(backend.Aborts, 2*time.Second, 5*time.Millisecond).
				Should(ConsistOf("sess_e2e"))

			// A second abort with nothing active is a no-op.
			Expect(controller.Abort(ctx)).To(Succeed())
			Expect(backend.Aborts()).To(HaveLen(1))
		})
	})
})
