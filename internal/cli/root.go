package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd создаёт корневую команду agentflow.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(version, &Env{})
}

func newRootCmd(version string, env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentflow",
		Short:         "agentflow — sequential workflow engine for AI and integration tasks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&env.ConfigPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringSliceVarP(&env.Files, "file", "f", nil, "Workflow definition file (repeatable)")
	root.PersistentFlags().BoolVar(&env.JSON, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&env.Offline, "offline", false, "Do not connect to PostgreSQL and Redis")
	root.PersistentFlags().BoolVarP(&env.Verbose, "verbose", "v", false, "Log at the configured level instead of WARN")

	root.AddCommand(
		NewRunCmd(env),
		NewEnqueueCmd(env),
		NewValidateCmd(env),
		NewWorkflowsCmd(env),
		NewTasksCmd(env),
	)

	return root
}
