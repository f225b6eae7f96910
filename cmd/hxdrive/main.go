// Command hxdrive runs scripted interaction scenarios against a live
// server: it loads a page, drives declared triggers, and prints the
// resulting document. Useful for smoke-testing hypermedia endpoints
// without a browser.
//
// Scenario file:
//
//	url: http://localhost:8080/
//	default_swap: innerHTML
//	timeout: 5s
//	steps:
//	  - fire: "#load-more"
//	    event: click
//	  - fire: "#search"
//	    event: change
//	    params:
//	      q: widgets
//	print: "#results"
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	hxdrive "github.com/pthm/hxdrive"
)

const version = "0.1.0"

type scenario struct {
	URL         string        `yaml:"url"`
	DefaultSwap string        `yaml:"default_swap"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	CSRFToken   string        `yaml:"csrf_token"`
	Steps       []step        `yaml:"steps"`
	Print       string        `yaml:"print"`
}

type step struct {
	Fire   string         `yaml:"fire"`
	Event  string         `yaml:"event"`
	Params map[string]any `yaml:"params"`
}

func main() {
	root := &cobra.Command{
		Use:          "hxdrive",
		Short:        "Headless hypermedia engine scenario runner",
		SilenceUsage: true,
	}

	var verbose bool
	run := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario file against a live server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd.Context(), args[0], verbose)
		},
	}
	run.Flags().BoolVarP(&verbose, "verbose", "v", false, "log each interaction")

	root.AddCommand(run, &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hxdrive version %s\n", version)
		},
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runScenario(ctx context.Context, path string, verbose bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sc scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if sc.URL == "" {
		return fmt.Errorf("%s: missing url", path)
	}

	cfg := hxdrive.Config{
		DefaultSwap:    hxdrive.SwapMode(sc.DefaultSwap),
		DefaultTimeout: sc.Timeout,
		DefaultRetries: sc.Retries,
		CSRFToken:      sc.CSRFToken,
	}

	engine, err := hxdrive.Load(ctx, sc.URL, cfg)
	if err != nil {
		return fmt.Errorf("loading %s: %w", sc.URL, err)
	}

	for i, st := range sc.Steps {
		elem := engine.Query(st.Fire)
		if elem == nil {
			return fmt.Errorf("step %d: no element matches %q", i+1, st.Fire)
		}
		event := st.Event
		if event == "" {
			event = "click"
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "step %d: %s %s\n", i+1, event, st.Fire)
		}
		if err := engine.Fire(ctx, elem, event, st.Params); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Fire, err)
		}
	}

	if sc.Print != "" {
		elem := engine.Query(sc.Print)
		if elem == nil {
			return fmt.Errorf("print: no element matches %q", sc.Print)
		}
		fmt.Println(hxdrive.RenderNode(elem))
		return nil
	}
	fmt.Println(engine.HTML())
	return nil
}
