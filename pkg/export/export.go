// Package export writes analysis reports to disk, as JSON for downstream
// tooling and as XLSX workbooks for assessment stakeholders.
package export

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/erpflow/erpflow/pkg/errors"
	"github.com/erpflow/erpflow/pkg/intelligence"
)

// WriteJSON serializes the report in its wire form to a file.
func WriteJSON(report *intelligence.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to marshal report")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.CodeExportFailed, "failed to write report to %s", path)
	}
	return nil
}

// WriteXLSX renders the report as a workbook: one sheet per completed phase
// plus a summary and a recommendations sheet.
func WriteXLSX(report *intelligence.Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	writeSummarySheet(f, report)
	if report.Variants != nil {
		writeVariantsSheet(f, report)
	}
	if report.Discovery != nil {
		writeDiscoverySheet(f, report)
	}
	if report.Conformance != nil {
		writeConformanceSheet(f, report)
	}
	if report.Performance != nil {
		writePerformanceSheet(f, report)
	}
	if report.Social != nil {
		writeSocialSheet(f, report)
	}
	if report.KPIs != nil {
		writeKPISheet(f, report)
	}
	writeRecommendationsSheet(f, report)

	// Drop the default sheet created by excelize.
	_ = f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, errors.CodeExportFailed, "failed to write workbook to %s", path)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func newSheet(f *excelize.File, name string, header ...interface{}) string {
	_, _ = f.NewSheet(name)
	if len(header) > 0 {
		setRow(f, name, 1, header...)
	}
	return name
}

func writeSummarySheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "Summary")
	s := report.Summary()

	rows := [][]interface{}{
		{"Run ID", s.RunID},
		{"Process", s.ProcessID},
		{"Reference model", s.ReferenceModelName},
		{"Event log", s.EventLog.Name},
		{"Cases", s.EventLog.CaseCount},
		{"Events", s.EventLog.EventCount},
		{"Activities", s.EventLog.ActivityCount},
		{"Resources", s.EventLog.ResourceCount},
		{"Completed phases", strings.Join(s.CompletedPhases, ", ")},
		{"Failed phases", strings.Join(s.FailedPhases, ", ")},
		{"High severity findings", s.HighSeverityCount},
		{"Duration", s.Duration.String()},
	}
	for i, row := range rows {
		setRow(f, sheet, i+1, row...)
	}
}

func writeVariantsSheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "Variants", "Rank", "Frequency", "Cases", "Sequence")
	for i, v := range report.Variants.Variants {
		setRow(f, sheet, i+2, i+1, v.Frequency, len(v.CaseIDs), strings.Join(v.Sequence, " -> "))
	}
}

func writeDiscoverySheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "Discovery", "Source", "Target", "Frequency", "Dependency", "Parallel")
	for i, e := range report.Discovery.Edges {
		setRow(f, sheet, i+2, e.Source, e.Target, e.Frequency, e.Dependency, e.Parallel)
	}
}

func writeConformanceSheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "Conformance")
	c := report.Conformance

	rows := [][]interface{}{
		{"Reference model", c.ReferenceModelID},
		{"Fitness", c.Fitness},
		{"Precision", c.Precision},
		{"Conformance rate (%)", c.ConformanceRate},
		{"Total deviations", c.DeviationStats.Total},
		{"Cases with deviations", c.DeviationStats.CasesWithDeviations},
	}
	for i, row := range rows {
		setRow(f, sheet, i+1, row...)
	}

	setRow(f, sheet, len(rows)+2, "Deviation type", "Count")
	row := len(rows) + 3
	for _, dtype := range sortedKeys(c.DeviationStats.ByType) {
		setRow(f, sheet, row, dtype, c.DeviationStats.ByType[dtype])
		row++
	}
}

func writePerformanceSheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "Performance", "From", "To", "Median wait", "Frequency", "Impact")
	p := report.Performance
	for i, b := range p.Bottlenecks {
		setRow(f, sheet, i+2, b.From, b.To, b.MedianDuration.String(), b.Frequency, b.Impact)
	}

	base := len(p.Bottlenecks) + 3
	setRow(f, sheet, base, "SLA target", "Bound", "Observed p90", "Status")
	for i, sla := range p.SLACompliance {
		setRow(f, sheet, base+i+1, sla.Target, sla.Bound.String(), sla.Observed.String(), sla.Status)
	}
}

func writeSocialSheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "Social", "Resource", "Degree", "Centrality")
	s := report.Social
	for i, c := range s.Centrality {
		setRow(f, sheet, i+2, c.Resource, c.Degree, c.Score)
	}

	base := len(s.Centrality) + 3
	setRow(f, sheet, base, "SoD rule", "Case", "Resource", "Activities")
	for i, v := range s.SoD.Violations {
		setRow(f, sheet, base+i+1, v.Rule, v.CaseID, v.Resource, strings.Join(v.Activities, ", "))
	}
}

func writeKPISheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "KPIs", "Group", "Name", "Value", "Unit", "CI lower", "CI upper")
	for i, k := range report.KPIs.All() {
		value := interface{}("n/a")
		if k.Value != nil {
			value = *k.Value
		}
		var lower, upper interface{}
		if k.CI != nil {
			lower, upper = k.CI.Lower, k.CI.Upper
		}
		setRow(f, sheet, i+2, k.Group, k.Name, value, k.Unit, lower, upper)
	}
}

func writeRecommendationsSheet(f *excelize.File, report *intelligence.Report) {
	sheet := newSheet(f, "Recommendations", "Severity", "Category", "Title", "Description", "Evidence")
	for i, rec := range report.Recommendations {
		setRow(f, sheet, i+2, rec.Severity, rec.Category, rec.Title, rec.Description, rec.Evidence)
	}

	if len(report.Errors) > 0 {
		base := len(report.Recommendations) + 3
		setRow(f, sheet, base, "Failed phase", "Message")
		for i, e := range report.Errors {
			setRow(f, sheet, base+i+1, e.Phase, e.Message)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteMigrationJSON serializes an ETLV run result to a file.
func WriteMigrationJSON(result interface{}, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to marshal migration result")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.CodeExportFailed, "failed to write %s", path)
	}
	return nil
}

// Format names a supported export format.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Write dispatches on format.
func Write(report *intelligence.Report, path string, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(report, path)
	case FormatXLSX:
		return WriteXLSX(report, path)
	default:
		return errors.Newf(errors.CodeExportFailed, "unsupported export format %q", format)
	}
}
