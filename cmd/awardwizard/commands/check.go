package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/livetemplate/awardwizard/internal/config"
)

func checkConfigCmd(g *globalFlags) *cobra.Command {
	var printYAML bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and show the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if printYAML {
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				_, err = out.Write(data)
				return err
			}
			fmt.Fprint(out, summary(cfg))
			return nil
		},
	}
	cmd.Flags().BoolVar(&printYAML, "print", false, "Print the effective configuration as YAML")
	return cmd
}

func summary(cfg *config.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "config ok\n")
	fmt.Fprintf(&b, "  title:    %s\n", cfg.Title)
	fmt.Fprintf(&b, "  listen:   %s\n", cfg.Server.Addr())
	fmt.Fprintf(&b, "  api:      %s\n", cfg.API.BaseURL)
	fmt.Fprintf(&b, "  session:  %s (ttl %s)\n", cfg.Session.Backend, cfg.Session.GetTTL())
	fmt.Fprintf(&b, "  uploads:  %d bytes, %s\n", cfg.Upload.GetMaxBytes(), strings.Join(cfg.Upload.Accept, ", "))
	if cfg.Server.TemplatesDir != "" {
		fmt.Fprintf(&b, "  templates: %s (watch %t)\n", cfg.Server.TemplatesDir, cfg.Server.Watch)
	}
	return b.String()
}
