package race

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{
	"Lane", "Provider", "Model", "Status",
	"TTFT (ms)", "Throughput (tokens/s)",
	"Input Tokens", "Output Tokens", "Total Tokens", "Chunks",
	"Synthesized", "Error",
}

// WriteCSV writes one row per lane. Undefined metrics are left empty.
func WriteCSV(w io.Writer, lanes []Lane) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, l := range lanes {
		row := []string{l.ID, l.ProviderID, l.ModelID, string(l.Status), "", "", "", "", "", strconv.Itoa(l.Chunks), "", l.Error}
		if m := l.Metrics; m != nil {
			if ttft, ok := m.TTFT(); ok {
				row[4] = strconv.FormatInt(ttft.Milliseconds(), 10)
			}
			if tput, ok := m.Throughput(); ok {
				row[5] = strconv.FormatFloat(roundToTwoDecimals(tput), 'f', 2, 64)
			}
			row[6] = strconv.Itoa(m.InputTokens)
			row[7] = strconv.Itoa(m.OutputTokens)
			row[8] = strconv.Itoa(m.TotalTokens)
			row[10] = strconv.FormatBool(m.Synthesized)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
