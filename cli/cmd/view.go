package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pithecene-io/ordo/cli/render"
)

// View lays out the run summary and one row per strategy.
func (r *RunResponse) View() render.View {
	best := r.Best
	if best == "" {
		best = "-"
	}
	v := render.View{Fields: []render.Field{
		{Label: "run id", Value: r.RunID},
		{Label: "project", Value: r.Project},
		{Label: "run dir", Value: r.RunDir},
		{Label: "best", Value: best},
		{Label: "duration", Value: fmt.Sprintf("%dms", r.DurationMs)},
	}}
	v.Fields = append(v.Fields, r.Storage.fields()...)

	t := render.Table{
		Title:   "Strategies",
		Headers: []string{"STRATEGY", "STEPS", "SUCCEEDED", "FAILED", "RESUMED", "AUC", "PERSIST ERROR"},
	}
	for _, s := range r.Strategies {
		t.Rows = append(t.Rows, []string{
			s.Strategy,
			strconv.Itoa(s.Steps),
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Resumed),
			render.Percent(s.AUC, s.NoData),
			s.PersistError,
		})
	}
	v.Tables = append(v.Tables, t)
	return v
}

// View lays out merge counts, the accepted candidates and every rejection reason.
func (r *MergeResponse) View() render.View {
	v := render.View{Fields: []render.Field{
		{Label: "tests", Value: strconv.Itoa(r.Tests)},
		{Label: "mandatory", Value: strconv.Itoa(r.Mandatory)},
		{Label: "consensus", Value: strconv.Itoa(r.Consensus)},
		{Label: "accepted", Value: strings.Join(r.Accepted, ", ")},
	}}
	v.Fields = append(v.Fields, r.Storage.fields()...)

	rejected := render.Table{Title: "Rejected", Headers: []string{"CANDIDATE", "REASON"}}
	for _, rej := range r.Rejected {
		for _, e := range rej.Errors {
			rejected.Rows = append(rejected.Rows, []string{rej.Name, e})
		}
	}
	files := render.Table{Title: "Files", Headers: []string{"PATH"}}
	for _, f := range r.Files {
		files.Rows = append(files.Rows, []string{f})
	}
	v.Tables = append(v.Tables, rejected, files)
	return v
}

// View lays out version information.
func (r VersionResponse) View() render.View {
	return render.View{Fields: []render.Field{
		{Label: "version", Value: r.Version},
		{Label: "contract", Value: r.ContractVersion},
		{Label: "commit", Value: r.Commit},
	}}
}

func (s *StorageResponse) fields() []render.Field {
	if s == nil {
		return nil
	}
	out := []render.Field{{Label: "storage", Value: s.Backend + " " + s.Path}}
	if s.Error != "" {
		out = append(out, render.Field{Label: "storage error", Value: s.Error})
	}
	return out
}
