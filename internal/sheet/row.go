package sheet

import "github.com/elpatron68/sheetdash/internal/task"

// Row is one sheet row. A nil Cells slice means the row had no cell
// container at all; an empty slice is a present but empty row.
type Row struct {
	Cells []Cell `json:"c"`
}

// Cell returns the display value at column i, "" when out of range.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i].String()
}

// Column offsets (0-indexed) of the task sheet: B C D E F H J N O P.
const (
	colTaskID      = 1
	colTask        = 2
	colStepCode    = 3
	colPlannedDate = 4
	colActualDate  = 5
	colFormLink    = 7
	colSystemType  = 9
	colStatus      = 13
	colDoerName    = 14
	colEmailID     = 15
)

// NormalizeRow maps a row to a task. It returns false for rows without a
// cell container and rows where both task id and task are empty.
func NormalizeRow(r Row) (task.Task, bool) {
	if r.Cells == nil {
		return task.Task{}, false
	}
	t := task.Task{
		TaskID:      r.Cell(colTaskID),
		Task:        r.Cell(colTask),
		StepCode:    r.Cell(colStepCode),
		PlannedDate: r.Cell(colPlannedDate),
		ActualDate:  r.Cell(colActualDate),
		FormLink:    r.Cell(colFormLink),
		SystemType:  r.Cell(colSystemType),
		Status:      r.Cell(colStatus),
		DoerName:    r.Cell(colDoerName),
		EmailID:     r.Cell(colEmailID),
	}
	if t.TaskID == "" && t.Task == "" {
		return task.Task{}, false
	}
	return t, true
}

// Normalize skips the header row and maps the remaining rows to tasks in
// source order. Malformed rows are dropped silently; blank trailing rows
// are normal in the sheet.
func Normalize(rows []Row) []task.Task {
	if len(rows) <= 1 {
		return []task.Task{}
	}
	out := make([]task.Task, 0, len(rows)-1)
	for _, r := range rows[1:] {
		if t, ok := NormalizeRow(r); ok {
			out = append(out, t)
		}
	}
	return out
}
