package e2e_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scribe-ide/scribe/internal/approval"
	"github.com/scribe-ide/scribe/internal/transport/testutil"
	"github.com/scribe-ide/scribe/pkg/types"
)

var _ = Describe("Approval Workflows", func() {
	// The backend proposes a file edit, waits for the user's verdict, then
	// finishes the turn.
	editScript := func(requestID string) testutil.TurnScript {
		return testutil.TurnScript{
			Frames: []string{
				`{"type":"text_delta","content":"I'll update the abstract. "}`,
				`{"type":"tool_call","tool_call_id":"1","tool_name":"write_file","args":{"target_path":"abstract.tex","content":"new text"}}`,
				`{"type":"approval_required","request_id":"` + requestID + `","tool_call_id":"1","tool_name":"write_file","tool_args":{"target_path":"abstract.tex","content":"new text"}}`,
			},
			WaitForResolution: requestID,
			FinalFrames: []string{
				`{"type":"tool_result","tool_call_id":"1","result":"wrote abstract.tex"}`,
				`{"type":"text_delta","content":"Done."}`,
			},
		}
	}

	waitingTool := func() *types.ToolPart {
		var tp *types.ToolPart
		Eventually(func() bool {
			agent := lastAgentTurn()
			if agent == nil {
				return false
			}
			for _, part := range toolParts(agent) {
				if part.Call.Status == types.ToolWaitingApproval {
					tp = part
					return true
				}
			}
			return false
		}, 2*time.Second, 5*time.Millisecond).Should(BeTrue())
		return tp
	}

	Describe("User Approval", func() {
		It("runs the full request, approve, resume cycle", func() {
			backend.ScriptTurn(editScript("req_1"))
			Expect(controller.Submit(ctx, "update the abstract")).To(Succeed())

			tp := waitingTool()
			Expect(tp.Call.Name).To(Equal("write_file"))
			Expect(tp.Call.ApprovalRequestID).To(Equal("req_1"))

			open := controller.Gate().Open()
			Expect(open).To(HaveLen(1))
			Expect(open[0].RequestID).To(Equal("req_1"))
			Expect(open[0].Edit).NotTo(BeNil())
			Expect(open[0].Edit.TargetPath).To(Equal("abstract.tex"))

			Expect(controller.ResolveApproval(ctx, "req_1", types.DecisionApprove)).To(Succeed())

			// Optimistic resolution lands before the backend's result frame.
			Expect(tp.Call.Status).To(Equal(types.ToolSuccess))
			Expect(controller.Gate().Open()).To(BeEmpty())

			Expect(terminalState()).To(Equal(types.TurnCompleted))
			Expect(turnText(lastAgentTurn())).To(Equal("I'll update the abstract. Done."))

			decision, ok := backend.Resolution("req_1")
			Expect(ok).To(BeTrue())
			Expect(decision).To(Equal("approve"))
		})

		It("tolerates a duplicate resolution", func() {
			backend.ScriptTurn(editScript("req_1"))
			Expect(controller.Submit(ctx, "update the abstract")).To(Succeed())
			waitingTool()

			Expect(controller.ResolveApproval(ctx, "req_1", types.DecisionApprove)).To(Succeed())
			Expect(controller.ResolveApproval(ctx, "req_1", types.DecisionReject)).To(Succeed())

			decision, _ := controller.Gate().Decision("req_1")
			Expect(decision).To(Equal(types.DecisionApprove))
			Expect(terminalState()).To(Equal(types.TurnCompleted))
		})
	})

	Describe("User Rejection", func() {
		It("fails the tool call with a rejection result", func() {
			backend.ScriptTurn(editScript("req_2"))
			Expect(controller.Submit(ctx, "update the abstract")).To(Succeed())

			tp := waitingTool()
			Expect(controller.ResolveApproval(ctx, "req_2", types.DecisionReject)).To(Succeed())

			Expect(tp.Call.Status).To(Equal(types.ToolError))
			Expect(tp.Call.Result).To(Equal("Rejected by user"))

			// A rejected tool does not end the turn.
			Expect(terminalState()).To(Equal(types.TurnCompleted))

			decision, ok := backend.Resolution("req_2")
			Expect(ok).To(BeTrue())
			Expect(decision).To(Equal("reject"))
		})
	})

	Describe("Policy Screening", func() {
		It("auto-approves tools the policy allows", func() {
			newController(approval.Policy{
				Tools: map[string]approval.Action{"read_file": approval.ActionAllow},
			})

			backend.ScriptTurn(testutil.TurnScript{
				Frames: []string{
					`{"type":"tool_call","tool_call_id":"1","tool_name":"read_file","args":{"path":"notes.md"}}`,
					`{"type":"approval_required","request_id":"req_3","tool_call_id":"1","tool_name":"read_file","tool_args":{"path":"notes.md"}}`,
				},
				WaitForResolution: "req_3",
				FinalFrames: []string{
					`{"type":"tool_result","tool_call_id":"1","result":"contents"}`,
				},
			})

			Expect(controller.Submit(ctx, "read my notes")).To(Succeed())
			Expect(terminalState()).To(Equal(types.TurnCompleted))

			decision, ok := backend.Resolution("req_3")
			Expect(ok).To(BeTrue())
			Expect(decision).To(Equal("approve"))

			tools := toolParts(lastAgentTurn())
			Expect(tools).To(HaveLen(1))
			Expect(tools[0].Call.Status).To(Equal(types.ToolSuccess))
		})

		It("auto-rejects edits to paths the policy denies", func() {
			newController(approval.Policy{
				EditPaths: map[string]approval.Action{"**/*.bib": approval.ActionDeny},
			})

			backend.ScriptTurn(testutil.TurnScript{
				Frames: []string{
					`{"type":"tool_call","tool_call_id":"1","tool_name":"write_file","args":{"target_path":"refs.bib"}}`,
					`{"type":"approval_required","request_id":"req_4","tool_call_id":"1","tool_name":"write_file","tool_args":{"target_path":"refs.bib"}}`,
				},
				WaitForResolution: "req_4",
			})

			Expect(controller.Submit(ctx, "fix the bibliography")).To(Succeed())
			Expect(terminalState()).To(Equal(types.TurnCompleted))

			decision, ok := backend.Resolution("req_4")
			Expect(ok).To(BeTrue())
			Expect(decision).To(Equal("reject"))

			tools := toolParts(lastAgentTurn())
			Expect(tools).To(HaveLen(1))
			Expect(tools[0].Call.Status).To(Equal(types.ToolError))
			Expect(tools[0].Call.Result).To(Equal("Rejected by user"))
		})
	})

	Describe("Backend Resolution", func() {
		It("records a decision made on another client without echoing it", func() {
			backend.ScriptTurn(testutil.TurnScript{Frames: []string{
				`{"type":"tool_call","tool_call_id":"1","tool_name":"write_file","args":{"target_path":"main.tex"}}`,
				`{"type":"approval_required","request_id":"req_5","tool_call_id":"1","tool_name":"write_file","tool_args":{"target_path":"main.tex"}}`,
				`{"type":"approval_resolved","request_id":"req_5","approved":true}`,
				`{"type":"tool_result","tool_call_id":"1","result":"wrote main.tex"}`,
			}})

			Expect(controller.Submit(ctx, "update main.tex")).To(Succeed())
			Expect(terminalState()).To(Equal(types.TurnCompleted))

			Eventually(func() bool {
				_, ok := controller.Gate().Decision("req_5")
				return ok
			}, 2*time.Second, 5*time.Millisecond).Should(BeTrue())

			decision, _ := controller.Gate().Decision("req_5")
			Expect(decision).To(Equal(types.DecisionApprove))

			// Nothing was sent upstream; the backend already knew.
			_, echoed := backend.Resolution("req_5")
			Expect(echoed).To(BeFalse())

			tools := toolParts(lastAgentTurn())
			Expect(tools).To(HaveLen(1))
			Expect(tools[0].Call.Status).To(Equal(types.ToolSuccess))
		})
	})
})
