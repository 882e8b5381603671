package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and pipeline topology",
	Long:  `Parses the configuration, builds the pipeline without contacting any model provider and reports topology errors.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		root, err := validatePipeline(cfg)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "pipeline %q is valid (%d nodes)\n", root.Name(), countNodes(root))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validatePipeline builds the tree against placeholder models so no
// credentials are required.
func validatePipeline(cfg *config.Config) (core.Node, error) {
	placeholder := model.NewFuncModel("validate", func(context.Context, model.Request) (*model.Response, error) {
		return &model.Response{}, nil
	})

	deps := config.BuildDeps{Model: placeholder, Models: map[string]model.Model{}}
	for _, mc := range cfg.Models {
		deps.Models[mc.ID] = placeholder
	}

	return config.Build(cfg.Pipeline, deps)
}

func countNodes(root core.Node) int {
	n := 0
	core.Walk(root, func(core.Node) bool { n++; return true })
	return n
}
