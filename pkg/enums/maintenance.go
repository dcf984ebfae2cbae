package enums

import "fmt"

// MaintenanceStatus tracks a long-running maintenance run.
type MaintenanceStatus string

const (
	MaintenanceStatusPending    MaintenanceStatus = "PENDING"
	MaintenanceStatusProcessing MaintenanceStatus = "PROCESSING"
	MaintenanceStatusDone       MaintenanceStatus = "DONE"
	MaintenanceStatusError      MaintenanceStatus = "ERROR"
)

func (s MaintenanceStatus) String() string {
	return string(s)
}

func (s MaintenanceStatus) IsValid() bool {
	switch s {
	case MaintenanceStatusPending, MaintenanceStatusProcessing, MaintenanceStatusDone, MaintenanceStatusError:
		return true
	}
	return false
}

// IsTerminal reports whether the run can no longer change state.
func (s MaintenanceStatus) IsTerminal() bool {
	return s == MaintenanceStatusDone || s == MaintenanceStatusError
}

// MaintenanceTask names a maintenance job kind.
type MaintenanceTask string

const (
	MaintenanceTaskOrphans   MaintenanceTask = "orphans"
	MaintenanceTaskChecksums MaintenanceTask = "checksums"
)

var validMaintenanceTasks = []MaintenanceTask{
	MaintenanceTaskOrphans,
	MaintenanceTaskChecksums,
}

func (t MaintenanceTask) String() string {
	return string(t)
}

func (t MaintenanceTask) IsValid() bool {
	for _, candidate := range validMaintenanceTasks {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseMaintenanceTask converts raw input into a MaintenanceTask.
func ParseMaintenanceTask(value string) (MaintenanceTask, error) {
	for _, candidate := range validMaintenanceTasks {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid maintenance task %q", value)
}
