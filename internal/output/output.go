// Package output renders recommendation lists and weekly schedules as
// human-readable tables.
package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
	"github.com/rgs-cdss/prescriber/pkg/core/services"
)

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var (
	balancedColor = color.New(color.FgGreen)
	violatedColor = color.New(color.FgRed, color.Bold)
)

// PrintRecommendations renders the selected recommendation list for one
// patient.
func PrintRecommendations(w io.Writer, patientID int64, recs []model.ScoredRecommendation) error {
	fmt.Fprintf(w, "\nRecommendations for patient %d (%d protocols):\n\n", patientID, len(recs))

	if len(recs) == 0 {
		fmt.Fprintln(w, "No recommendable protocols.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Protocol", "Score", "PPF", "Adherence", "DM", "PE", "Usage"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for i, r := range recs {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(r.ProtocolID, 10),
			fmt.Sprintf("%.3f", r.Score),
			fmt.Sprintf("%.3f", r.PPF),
			fmt.Sprintf("%.3f", r.Adherence),
			fmt.Sprintf("%.3f", r.DMValue),
			fmt.Sprintf("%.3f", r.PEValue),
			strconv.Itoa(r.Usage),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// PrintSchedule renders a patient's weekly schedule with the per-day load
// summary and the balance verdict.
func PrintSchedule(w io.Writer, result *services.ScheduleResult) error {
	fmt.Fprintf(w, "\nWeekly schedule for patient %d:\n\n", result.PatientID)

	if len(result.Recommendations) == 0 {
		fmt.Fprintln(w, "No protocols to schedule.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Protocol", "Score", "Freq", "Days"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for i, r := range result.Recommendations {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(r.ProtocolID, 10),
			fmt.Sprintf("%.3f", r.Score),
			strconv.Itoa(len(r.Days)),
			formatDays(r.Days),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nDay load: %s (total %d)\n",
		formatDayCounts(result.Allocation.DayCounts), result.Allocation.TotalSlots())

	if result.Balanced {
		fmt.Fprintf(w, "Balance: %s\n", balancedColor.Sprint("OK"))
	} else {
		fmt.Fprintf(w, "Balance: %s\n", violatedColor.Sprint("VIOLATED"))
		for _, v := range result.Violations {
			fmt.Fprintf(w, "  - %s\n", v.Description)
		}
	}

	return nil
}

func formatDays(days []int) string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = weekdayNames[d]
	}
	return strings.Join(names, " ")
}

func formatDayCounts(counts [model.DaysPerWeek]int) string {
	parts := make([]string, len(counts))
	for d, c := range counts {
		parts[d] = fmt.Sprintf("%s=%d", weekdayNames[d], c)
	}
	return strings.Join(parts, " ")
}
