package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteText renders the result as a human-readable trace.
func WriteText(w io.Writer, r *Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", r.Name)
	for _, e := range r.Trace {
		b.WriteString(formatEvent(e))
		b.WriteByte('\n')
	}
	b.WriteString("final:\n")
	for _, f := range r.Fighters {
		fmt.Fprintf(&b, "  %s health=%.2f/%.2f stress=%.2f aggravated=%.2f condition=%s\n",
			f.ID, f.Vitals.Cur, f.Vitals.Max, f.Vitals.Stress, f.Vitals.AggravatedStress, f.Condition)
	}
	fmt.Fprintf(&b, "procs: %d\n", r.Procs)

	_, err := io.WriteString(w, b.String())
	return err
}

func formatEvent(e TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[+%.3fs] %s %s", float64(e.AtMS)/1000, e.Type, e.Source)
	if e.Target != "" {
		fmt.Fprintf(&b, " -> %s", e.Target)
	}
	if e.Amount != 0 {
		fmt.Fprintf(&b, " amount=%.2f", e.Amount)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%q", e.Reason)
	}
	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Metadata[k])
	}
	return b.String()
}

// WriteJSON renders the result as indented JSON.
func WriteJSON(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
