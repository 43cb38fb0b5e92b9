package tools

import (
	"context"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/vfs"
)

// RegisterPlanTools wires ask_user and exit_plan_mode, the cooperative
// plan/build handshake tools. Neither tool mutates the
// filesystem directly; exit_plan_mode signals the Chat Actor to leave plan
// mode by returning a structured marker in ForUser, which the actor (the
// only component that owns session.mode) interprets after the tool call
// returns.
func RegisterPlanTools(reg *Registry, store vfs.Store) {
	reg.Register(Definition{
		Name:        ToolAskUser,
		Description: "Ask the user a clarifying question, optionally with a fixed set of choices.",
		Schema: schema(props{
			"question": strProp("Question to ask the user."),
			"choices":  arrProp("Optional fixed set of answer choices."),
		}, []string{"question"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			question, err := argString(inv.Args, "question", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			choices, _ := argStringSlice(inv.Args, "choices")
			return NewResult("waiting for user response to: "+question, map[string]any{
				"action":   "ask_user",
				"question": question,
				"choices":  choices,
			}), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolExitPlanMode,
		Description: "Request to leave plan mode once a plan at plan_path has been approved via ask_user.",
		Schema:      schema(props{"plan_path": strProp("Path to the approved Plan file.")}, []string{"plan_path"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			planPath, err := argString(inv.Args, "plan_path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			file, err := store.Resolve(ctx, inv.WorkspaceID, planPath)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			if file.Type != domain.FileTypePlan {
				return ErrorResult("plan_path must reference a Plan file"), nil
			}
			return NewResult("exiting plan mode with plan "+planPath, map[string]any{
				"action":    "exit_plan_mode",
				"plan_path": planPath,
			}), nil
		},
	})
}
