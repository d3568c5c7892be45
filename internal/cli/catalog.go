package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/tasks"
)

// NewValidateCmd создаёт команду проверки файлов определений.
//
// Файл проверяется целиком: формат, уникальность имён шагов
// и существование типов задач.
func NewValidateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate workflow definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			catalog := engine.NewCatalog(tasks.DefaultRegistry(tasks.Deps{}))

			type entry struct {
				File     string `json:"file"`
				Workflow string `json:"workflow"`
				Steps    int    `json:"steps"`
			}
			var entries []entry
			var failed []string

			for _, path := range args {
				defs, err := engine.LoadInto(catalog, path)
				if err != nil {
					out.Error(err.Error())
					failed = append(failed, path)
					continue
				}
				for _, def := range defs {
					entries = append(entries, entry{File: path, Workflow: def.Name, Steps: len(def.Steps)})
				}
			}

			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.File, e.Workflow, strconv.Itoa(e.Steps)}
			}
			out.Print([]string{"FILE", "WORKFLOW", "STEPS"}, rows, entries)

			if len(failed) > 0 {
				return fmt.Errorf("invalid files: %s", strings.Join(failed, ", "))
			}
			out.Success(fmt.Sprintf("%d workflow(s) valid", len(entries)))
			return nil
		},
	}
}

// NewWorkflowsCmd создаёт команду вывода каталога workflow.
func NewWorkflowsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List workflows from configured definition files",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			a, err := env.App(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			type entry struct {
				Name  string   `json:"name"`
				Steps []string `json:"steps"`
			}
			names := a.Catalog.Names()
			entries := make([]entry, 0, len(names))
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				def, _ := a.Catalog.Get(name)
				entries = append(entries, entry{Name: name, Steps: def.StepNames()})
				rows = append(rows, []string{name, strings.Join(def.StepNames(), " → ")})
			}

			out.Print([]string{"WORKFLOW", "STEPS"}, rows, entries)
			return nil
		},
	}
}

// NewTasksCmd создаёт команду вывода зарегистрированных типов задач.
func NewTasksCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered task types",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			types := tasks.DefaultRegistry(tasks.Deps{}).Types()

			rows := make([][]string, len(types))
			for i, t := range types {
				rows[i] = []string{t}
			}
			out.Print([]string{"TYPE"}, rows, types)
			return nil
		},
	}
}
