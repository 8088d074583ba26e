package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/logging"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/plan"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/preflight"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/schema"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/seed"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/synthetic"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// exitError fails the command after its output has already been printed.
type exitError struct {
	reason string
}

func (e *exitError) Error() string { return e.reason }

type cli struct {
	output   string
	logLevel string
	logger   *logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: logging.NewNop()}

	root := &cobra.Command{
		Use:           "deskctl",
		Short:         "Validate, check, compile and replay helpdesk solution manifests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.output != "json" && c.output != "yaml" {
				return fmt.Errorf("unsupported output %q (want json or yaml)", c.output)
			}
			if c.logLevel == "" {
				return nil
			}
			l, err := logging.NewLogger(c.logLevel)
			if err != nil {
				return err
			}
			c.logger = l
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log to stderr at this level (debug, info, warn, error)")

	root.AddCommand(
		c.validateCmd(),
		c.preflightCmd(),
		c.planCmd(),
		c.diffCmd(),
		c.seedCmd(),
		c.runCmd(),
		c.exportCmd(),
	)
	return root
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Structurally validate a manifest and list every issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.validate(cmd, args[0])
			if err != nil {
				return err
			}
			if err := c.print(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK {
				return &exitError{reason: "manifest is invalid"}
			}
			return nil
		},
	}
}

func (c *cli) preflightCmd() *cobra.Command {
	var strict, referential bool
	cmd := &cobra.Command{
		Use:   "preflight <manifest>",
		Short: "Run the cross-block preflight checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.load(cmd, args[0])
			if err != nil {
				return err
			}
			var opts []preflight.Option
			if referential {
				opts = append(opts, preflight.WithReferentialChecks())
			}
			issues := preflight.Run(m, opts...)
			report := struct {
				Issues  []models.PreflightIssue `json:"issues"`
				Summary preflight.Summary       `json:"summary"`
			}{issues, preflight.Summarize(issues)}
			if err := c.print(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if strict && preflight.HasErrors(issues) {
				return &exitError{reason: "preflight reported errors"}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any error-graded issue is reported")
	cmd.Flags().BoolVar(&referential, "referential", false, "also check that cross-block references name declared blocks")
	return cmd
}

func (c *cli) planCmd() *cobra.Command {
	var previous string
	var detect bool
	cmd := &cobra.Command{
		Use:   "plan <manifest>",
		Short: "Compile a manifest into a dry-run plan and diff it against --previous",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.load(cmd, args[0])
			if err != nil {
				return err
			}
			compiled := plan.Compile(m)
			var prevPlan *models.DryRunPlan
			if previous != "" {
				prev, err := c.load(cmd, previous)
				if err != nil {
					return err
				}
				p := plan.Compile(prev)
				prevPlan = &p
			}
			report := struct {
				Plan models.DryRunPlan `json:"plan"`
				Diff []models.DiffItem `json:"diff"`
			}{compiled, plan.Diff(prevPlan, compiled, diffOptions(detect)...)}
			return c.print(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&previous, "previous", "", "previous manifest to diff against")
	cmd.Flags().BoolVar(&detect, "detect-changes", false, "report field-level changes between items with the same name")
	return cmd
}

func (c *cli) diffCmd() *cobra.Command {
	var detect, hideUnchanged bool
	cmd := &cobra.Command{
		Use:   "diff <previous> <current>",
		Short: "Diff the plans of two manifests",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := c.load(cmd, args[0])
			if err != nil {
				return err
			}
			cur, err := c.load(cmd, args[1])
			if err != nil {
				return err
			}
			p := plan.Compile(prev)
			items := plan.Diff(&p, plan.Compile(cur), diffOptions(detect)...)
			if hideUnchanged {
				items = plan.Changes(items)
			}
			return c.print(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().BoolVar(&detect, "detect-changes", false, "report field-level changes between items with the same name")
	cmd.Flags().BoolVar(&hideUnchanged, "hide-unchanged", false, "omit unchanged items")
	return cmd
}

func (c *cli) seedCmd() *cobra.Command {
	var records int
	cmd := &cobra.Command{
		Use:   "seed <manifest>",
		Short: "Generate deterministic example records for every entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.load(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := seed.Generate(m, records)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVarP(&records, "records", "n", 5, "records per entity")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var (
		workflowID string
		ticketFile string
		fields     map[string]string
	)
	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Replay a workflow and its rules against ticket data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.load(cmd, args[0])
			if err != nil {
				return err
			}
			ticket := map[string]any{}
			if ticketFile != "" {
				doc, err := c.readDocument(cmd, ticketFile)
				if err != nil {
					return err
				}
				obj, ok := doc.(map[string]any)
				if !ok {
					return fmt.Errorf("%s: ticket must be an object", ticketFile)
				}
				ticket = obj
			}
			for k, v := range fields {
				ticket[k] = v
			}
			log := synthetic.Run(m, workflowID, ticket)
			if err := c.print(cmd.OutOrStdout(), log); err != nil {
				return err
			}
			if log.Status == models.RunError {
				return &exitError{reason: log.Error}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "id of the workflow block to run")
	cmd.Flags().StringVar(&ticketFile, "ticket", "", "JSON or YAML file with ticket field values")
	cmd.Flags().StringToStringVar(&fields, "set", nil, "ticket field values as key=value")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <manifest>",
		Short: "Validate a manifest and print it in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.load(cmd, args[0])
			if err != nil {
				return err
			}
			if c.output == "yaml" {
				return c.print(cmd.OutOrStdout(), m)
			}
			data, err := schema.Export(m)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func diffOptions(detect bool) []plan.DiffOption {
	if detect {
		return []plan.DiffOption{plan.WithChangeDetection()}
	}
	return nil
}

// load validates a manifest file and fails with every issue listed.
func (c *cli) load(cmd *cobra.Command, path string) (models.Manifest, error) {
	res, err := c.validate(cmd, path)
	if err != nil {
		return models.Manifest{}, err
	}
	if !res.OK {
		lines := make([]string, len(res.Issues))
		for i, is := range res.Issues {
			lines[i] = "  " + is.String()
		}
		return models.Manifest{}, fmt.Errorf("%s is not a valid manifest:\n%s", path, strings.Join(lines, "\n"))
	}
	return *res.Manifest, nil
}

func (c *cli) validate(cmd *cobra.Command, path string) (schema.Result, error) {
	if isYAML(path) {
		doc, err := c.readDocument(cmd, path)
		if err != nil {
			return schema.Result{}, err
		}
		return schema.ValidateValue(doc), nil
	}
	data, err := c.read(cmd, path)
	if err != nil {
		return schema.Result{}, err
	}
	return schema.Validate(data), nil
}

// readDocument decodes a JSON or YAML file into plain JSON values.
func (c *cli) readDocument(cmd *cobra.Command, path string) (any, error) {
	data, err := c.read(cmd, path)
	if err != nil {
		return nil, err
	}
	var doc any
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: invalid YAML: %w", path, err)
		}
		return normalize(doc), nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", path, err)
	}
	return doc, nil
}

func (c *cli) read(cmd *cobra.Command, path string) ([]byte, error) {
	c.logger.Debug("reading input", "path", path)
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (c *cli) print(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if c.output == "yaml" {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// normalize converts YAML scalars and maps into the shapes encoding/json
// produces, so YAML and JSON input validate identically.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	}
	return v
}
