package domain

// Status is a project's position in the delivery pipeline. The authoritative
// copy lives in the projects row; every change goes through the store's
// locked Mutate.
type Status string

const (
	StatusPending                Status = "PENDING"
	StatusAnalysisPending        Status = "ANALYSIS_PENDING"
	StatusAnalysisComplete       Status = "ANALYSIS_COMPLETE"
	StatusDesignPending          Status = "DESIGN_PENDING"
	StatusDesignComplete         Status = "DESIGN_COMPLETE"
	StatusCodeGeneration         Status = "CODE_GENERATION"
	StatusCodeGenerationComplete Status = "CODE_GENERATION_COMPLETE"
	StatusQAPending              Status = "QA_PENDING"
	StatusQAComplete             Status = "QA_COMPLETE"
	StatusSecurityScanPending    Status = "SECURITY_SCAN_PENDING"
	StatusSecurityScanComplete   Status = "SECURITY_SCAN_COMPLETE"
	StatusDeploymentPending      Status = "DEPLOYMENT_PENDING"
	StatusCompleted              Status = "COMPLETED"
	StatusFailed                 Status = "FAILED"
)

// AllStatuses lists every status in pipeline order, FAILED last.
var AllStatuses = []Status{
	StatusPending,
	StatusAnalysisPending,
	StatusAnalysisComplete,
	StatusDesignPending,
	StatusDesignComplete,
	StatusCodeGeneration,
	StatusCodeGenerationComplete,
	StatusQAPending,
	StatusQAComplete,
	StatusSecurityScanPending,
	StatusSecurityScanComplete,
	StatusDeploymentPending,
	StatusCompleted,
	StatusFailed,
}

// rank gives each pipeline status its position for ordering checks. FAILED
// is absent on purpose: it sits outside the linear order.
var rank = func() map[Status]int {
	m := make(map[Status]int, len(AllStatuses))
	for i, s := range AllStatuses {
		if s == StatusFailed {
			continue
		}
		m[s] = i
	}
	return m
}()

// transitions is the legal edge set. Every non-terminal status may also move
// to FAILED; that edge is checked in CanTransition rather than listed here.
var transitions = map[Status]Status{
	StatusPending:                StatusAnalysisPending,
	StatusAnalysisPending:        StatusAnalysisComplete,
	StatusAnalysisComplete:       StatusDesignPending,
	StatusDesignPending:          StatusDesignComplete,
	StatusDesignComplete:         StatusCodeGeneration,
	StatusCodeGeneration:         StatusCodeGenerationComplete,
	StatusCodeGenerationComplete: StatusQAPending,
	StatusQAPending:              StatusQAComplete,
	StatusQAComplete:             StatusSecurityScanPending,
	StatusSecurityScanPending:    StatusSecurityScanComplete,
	StatusSecurityScanComplete:   StatusDeploymentPending,
	StatusDeploymentPending:      StatusCompleted,
}

var progressByStatus = map[Status]int{
	StatusPending:                0,
	StatusAnalysisPending:        10,
	StatusAnalysisComplete:       20,
	StatusDesignPending:          30,
	StatusDesignComplete:         40,
	StatusCodeGeneration:         50,
	StatusCodeGenerationComplete: 55,
	StatusQAPending:              60,
	StatusQAComplete:             70,
	StatusSecurityScanPending:    75,
	StatusSecurityScanComplete:   78,
	StatusDeploymentPending:      80,
	StatusCompleted:              100,
	StatusFailed:                 0,
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	_, ok := progressByStatus[s]
	return ok
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsProcessing reports whether background work is running or queued for a
// project in this status. ANALYSIS_COMPLETE is excluded: the pipeline is
// parked there waiting for the owner's approval.
func (s Status) IsProcessing() bool {
	switch s {
	case StatusAnalysisPending, StatusDesignPending, StatusCodeGeneration,
		StatusQAPending, StatusSecurityScanPending, StatusDeploymentPending:
		return true
	}
	return false
}

// Progress maps s to a display percentage. FAILED reports zero regardless of
// how far the project got.
func (s Status) Progress() int {
	return progressByStatus[s]
}

// CanTransition reports whether from→to is a legal edge. Any non-terminal
// status may fail; everything else follows the linear pipeline.
func CanTransition(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return transitions[from] == to
}

// ReachedOrPassed reports whether s is at or beyond target in pipeline
// order. FAILED never reaches anything.
func (s Status) ReachedOrPassed(target Status) bool {
	si, ok := rank[s]
	if !ok {
		return false
	}
	ti, ok := rank[target]
	if !ok {
		return false
	}
	return si >= ti
}
