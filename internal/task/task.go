package task

// Task is one normalized row of the tracking sheet. All fields are display
// strings as they appear in the sheet; empty means the cell was blank.
type Task struct {
	TaskID      string `json:"taskId"`
	Task        string `json:"task"`
	StepCode    string `json:"stepCode"`
	PlannedDate string `json:"plannedDate"`
	ActualDate  string `json:"actualDate"`
	FormLink    string `json:"formLink"`
	SystemType  string `json:"systemType"`
	Status      string `json:"status"`
	DoerName    string `json:"doerName"`
	EmailID     string `json:"emailId"`
}

// Pending reports whether the task has no recorded completion date.
func (t Task) Pending() bool { return t.ActualDate == "" }

// Field names a sortable column of Task.
type Field string

const (
	FieldTaskID      Field = "taskId"
	FieldTask        Field = "task"
	FieldStepCode    Field = "stepCode"
	FieldPlannedDate Field = "plannedDate"
	FieldActualDate  Field = "actualDate"
	FieldFormLink    Field = "formLink"
	FieldSystemType  Field = "systemType"
	FieldStatus      Field = "status"
	FieldDoerName    Field = "doerName"
	FieldEmailID     Field = "emailId"
)

// Fields lists all columns in sheet order.
var Fields = []Field{
	FieldTaskID, FieldTask, FieldStepCode, FieldPlannedDate, FieldActualDate,
	FieldFormLink, FieldSystemType, FieldStatus, FieldDoerName, FieldEmailID,
}

// ParseField maps a column name to a Field. Unknown names return false.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Get returns the value of the given column.
func (t Task) Get(f Field) string {
	switch f {
	case FieldTaskID:
		return t.TaskID
	case FieldTask:
		return t.Task
	case FieldStepCode:
		return t.StepCode
	case FieldPlannedDate:
		return t.PlannedDate
	case FieldActualDate:
		return t.ActualDate
	case FieldFormLink:
		return t.FormLink
	case FieldSystemType:
		return t.SystemType
	case FieldStatus:
		return t.Status
	case FieldDoerName:
		return t.DoerName
	case FieldEmailID:
		return t.EmailID
	default:
		return ""
	}
}

// PendingOf returns the pending subset of tasks, preserving order.
func PendingOf(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Pending() {
			out = append(out, t)
		}
	}
	return out
}
