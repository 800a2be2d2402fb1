package commands

import (
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/pipeline"
	"github.com/implicit-corpus/collector/report"
)

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsDependencyUnmet(err):
		return 3
	case errors.IsToolAcquisitionFailed(err):
		return 4
	case errors.Is(err, errors.ErrInvalidRequest):
		return 2
	}
	return 1
}

// printResult reports one phase outcome
func printResult(res phase.Result) {
	t := res.Target
	switch res.Disposition {
	case phase.Checkpoint:
		pterm.Info.Printfln("%s %s already concluded: %s %s", t.Phase, t.Project, res.Status, firstLine(res.Payload))
	case phase.Blocked:
		pterm.Warning.Printfln("%s %s failed previously and was not retried: %s", t.Phase, t.Project, firstLine(res.Payload))
	case phase.Ran:
		switch res.Status {
		case report.StatusSuccess:
			pterm.Success.Printfln("%s %s: %s (%s)", t.Phase, t.Project, firstLine(res.Payload), res.Duration.Round(time.Millisecond))
		case report.StatusError:
			pterm.Error.Printfln("%s %s failed after %s", t.Phase, t.Project, res.Duration.Round(time.Millisecond))
			if res.Payload != "" {
				pterm.Println(indent(res.Payload))
			}
		default:
			pterm.Warning.Printfln("%s %s: %s %s", t.Phase, t.Project, res.Status, firstLine(res.Payload))
		}
	}
}

// printBatch prints one row per project with the last phase it reached
func printBatch(results []pipeline.ProjectResult) {
	rows := pterm.TableData{{"Project", "Phase", "Outcome", "Status", "Detail"}}
	for _, pr := range results {
		last, ok := pr.Last()
		switch {
		case pr.Skipped:
			rows = append(rows, []string{pr.Project, "", "skipped", "", ""})
		case !ok:
			rows = append(rows, []string{pr.Project, "", "", "", errDetail(pr.Err)})
		default:
			detail := firstLine(last.Payload)
			if pr.Err != nil {
				detail = errDetail(pr.Err)
			}
			rows = append(rows, []string{pr.Project, string(last.Target.Phase), string(last.Disposition), string(last.Status), detail})
		}
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return firstLine(err.Error())
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if len(line) > 100 {
		line = line[:97] + "..."
	}
	return line
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}

// resultView is the JSON shape of a phase result
type resultView struct {
	Project     string `json:"project"`
	Phase       string `json:"phase"`
	Disposition string `json:"disposition"`
	Status      string `json:"status,omitempty"`
	Payload     string `json:"payload,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

func newResultView(res phase.Result) resultView {
	return resultView{
		Project:     res.Target.Project,
		Phase:       string(res.Target.Phase),
		Disposition: string(res.Disposition),
		Status:      string(res.Status),
		Payload:     res.Payload,
		DurationMS:  res.Duration.Milliseconds(),
	}
}

type projectView struct {
	Project string       `json:"project"`
	Phases  []resultView `json:"phases"`
	Error   string       `json:"error,omitempty"`
	Skipped bool         `json:"skipped,omitempty"`
}

type batchView struct {
	RunID    string        `json:"run_id"`
	Projects []projectView `json:"projects"`
}

func newBatchView(runID string, results []pipeline.ProjectResult) batchView {
	v := batchView{RunID: runID, Projects: make([]projectView, len(results))}
	for i, pr := range results {
		pv := projectView{Project: pr.Project, Skipped: pr.Skipped, Phases: []resultView{}}
		for _, r := range pr.Results {
			pv.Phases = append(pv.Phases, newResultView(r))
		}
		if pr.Err != nil {
			pv.Error = pr.Err.Error()
		}
		v.Projects[i] = pv
	}
	return v
}
