package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/domain"
)

// ErrWorkflowFailed — прогон завершился со статусом failed.
var ErrWorkflowFailed = errors.New("workflow failed")

// NewRunCmd создаёт команду синхронного запуска workflow.
func NewRunCmd(env *Env) *cobra.Command {
	var inputs []string
	var inputJSON string

	cmd := &cobra.Command{
		Use:   "run WORKFLOW",
		Short: "Run a workflow in-process and stream its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			data, err := collectInputs(inputs, inputJSON)
			if err != nil {
				return err
			}

			a, err := env.App(cmd.Context(), app.Options{Database: true, Redis: true})
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Orchestrator.ExecuteType(cmd.Context(), args[0], a.NewContext(data),
				func(step domain.StepResult) error {
					out.Step(step)
					return nil
				})
			if err != nil {
				return err
			}

			out.Result(result)
			if result.Failed() {
				return fmt.Errorf("%w: %s", ErrWorkflowFailed, result.ErrorMessage())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Initial context value as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&inputJSON, "input-json", "", "Initial context as a JSON object")

	return cmd
}

// NewEnqueueCmd создаёт команду постановки workflow в очередь.
func NewEnqueueCmd(env *Env) *cobra.Command {
	var inputs []string
	var inputJSON string

	cmd := &cobra.Command{
		Use:   "enqueue WORKFLOW",
		Short: "Enqueue a workflow for asynchronous execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			data, err := collectInputs(inputs, inputJSON)
			if err != nil {
				return err
			}

			a, err := env.App(cmd.Context(), app.Options{Queue: true, Database: true, Redis: true, ConnectionName: "agentflow-cli"})
			if err != nil {
				return err
			}
			defer a.Close()

			handle, err := a.RunLater(cmd.Context(), args[0], a.NewContext(data))
			if err != nil {
				return err
			}

			execID := "-"
			if handle.ExecutionID != nil {
				execID = handle.ExecutionID.String()
			}

			out.Success("Workflow enqueued")
			out.Print(
				[]string{"JOB_ID", "EXECUTION_ID", "WORKFLOW"},
				[][]string{{handle.JobID, execID, handle.WorkflowType}},
				handle,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Initial context value as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&inputJSON, "input-json", "", "Initial context as a JSON object")

	return cmd
}

// collectInputs объединяет --input-json и --input; --input имеет приоритет.
func collectInputs(pairs []string, inputJSON string) (map[string]any, error) {
	data := map[string]any{}
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &data); err != nil {
			return nil, fmt.Errorf("invalid --input-json: %w", err)
		}
	}

	parsed, err := ParseInputs(pairs)
	if err != nil {
		return nil, err
	}
	maps.Copy(data, parsed)
	return data, nil
}
