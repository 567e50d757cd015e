package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/cellstore"
	"github.com/jpalmerr/cellstore/config"
	"github.com/jpalmerr/cellstore/internal/memo"
)

// replayCmd runs the script section of a config against a fresh store.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the config's script and print what subscribers see",
	Long: `Build the store from a config file and run its script steps in order.

Each step prints one JSON line. A subscribe step prints the current value;
a dispatch step prints the event and, if rejected, the error. Every
notification a subscription receives is printed as a notify line with the
fresh value, and the subscription is renewed, so later changes are reported
too. The final state is printed last.

Example script:
  script:
    - subscribe: count
    - dispatch: inc
    - dispatch: inc
      args: [5]

Exit codes:
  0 - Every step succeeded (or --strict is off)
  1 - The config is invalid, or --strict is set and a step failed`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	replayCmd.Flags().Bool("strict", false, "fail if any step is rejected")
	_ = replayCmd.MarkFlagRequired("config")
}

// replayLine is one line of replay output.
type replayLine struct {
	Step  int             `json:"step"`
	Op    string          `json:"op"`
	Name  string          `json:"name,omitempty"`
	Args  []any           `json:"args,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// rawValue encodes v so that zero values such as 0 and false still print.
func rawValue(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func runReplay(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	strict, _ := cmd.Flags().GetBool("strict")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	st, err := config.BuildStore(cfg, cellstore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	failed, err := replay(st, cfg.Script, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if strict && failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(cfg.Script))
	}
	return nil
}

// replay runs steps against st and writes JSON lines to out. It returns
// how many steps were rejected.
func replay(st *cellstore.Store[any], steps []config.StepConfig, out io.Writer) (int, error) {
	w := &lineWriter{enc: json.NewEncoder(out)}
	r := &renewer{store: st, out: w}

	failed := 0
	for i, step := range steps {
		w.step = i
		switch {
		case step.Subscribe != "":
			v, err := r.subscribe(step.Subscribe, step.Args)
			line := replayLine{Op: "subscribe", Name: step.Subscribe, Args: step.Args}
			if err != nil {
				failed++
				line.Error = err.Error()
			} else {
				line.Value = rawValue(v)
			}
			w.write(line)

		case step.Dispatch != "":
			w.write(replayLine{Op: "dispatch", Name: step.Dispatch, Args: step.Args})
			if err := st.Dispatch(step.Dispatch, step.Args...); err != nil {
				failed++
				w.write(replayLine{Op: "rejected", Name: step.Dispatch, Error: err.Error()})
			}

		default:
			return failed, errors.New("script step has neither subscribe nor dispatch")
		}
	}

	w.step = len(steps)
	w.write(replayLine{Op: "state", Value: rawValue(st.Read())})
	return failed, w.err
}

// lineWriter encodes replay lines, keeping the first write error.
type lineWriter struct {
	mu   sync.Mutex
	enc  *json.Encoder
	step int
	err  error
}

func (w *lineWriter) write(line replayLine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	line.Step = w.step
	w.err = w.enc.Encode(line)
}

// renewer is the single notifiable of a replay. It remembers every argument
// tuple subscribed under each name and renews them all when notified.
type renewer struct {
	store *cellstore.Store[any]
	out   *lineWriter

	mu     sync.Mutex
	tuples map[string][][]any
}

func (r *renewer) subscribe(sub string, args []any) (any, error) {
	v, err := r.store.Subscribe(r, sub, args...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tuples == nil {
		r.tuples = make(map[string][][]any)
	}
	for _, t := range r.tuples[sub] {
		if memo.ArgsEqual(t, args) {
			return v, nil
		}
	}
	r.tuples[sub] = append(r.tuples[sub], args)
	return v, nil
}

// Notify implements cellstore.Notifiable.
func (r *renewer) Notify(sub string, _, _ any) {
	r.mu.Lock()
	tuples := append([][]any(nil), r.tuples[sub]...)
	r.mu.Unlock()

	for _, args := range tuples {
		line := replayLine{Op: "notify", Name: sub, Args: args}
		v, err := r.store.Subscribe(r, sub, args...)
		if err != nil {
			line.Error = err.Error()
		} else {
			line.Value = rawValue(v)
		}
		r.out.write(line)
	}
}
