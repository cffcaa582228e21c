package originator

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/tftprelay/internal/protocol"
	"github.com/1ureka/tftprelay/internal/transport"
)

// Outcome condenses r into a short label for the summary table.
func (r Result) Outcome() string {
	switch {
	case r.OK():
		return "ok"
	case errors.Is(r.Err, transport.ErrTimeout):
		if r.Receipt == nil {
			return "no receipt"
		}
		return "no response"
	case r.Err != nil:
		return "failed"
	}
	return "incomplete"
}

// SummaryTable lays results out for pterm.DefaultTable, header row first.
func SummaryTable(results []Result) pterm.TableData {
	data := pterm.TableData{{"#", "Sent", "Receipt", "Response", "Time", "Outcome"}}
	for _, r := range results {
		data = append(data, []string{
			fmt.Sprintf("%d", r.Index),
			r.Kind.String(),
			kindOf(r.Receipt),
			kindOf(r.Response),
			r.Elapsed.Round(time.Millisecond).String(),
			r.Outcome(),
		})
	}
	return data
}

func kindOf(b []byte) string {
	if b == nil {
		return "-"
	}
	return protocol.Classify(b).String()
}

// RenderSummary prints the results table to stdout.
func RenderSummary(results []Result) error {
	return pterm.DefaultTable.WithHasHeader().WithData(SummaryTable(results)).Render()
}
