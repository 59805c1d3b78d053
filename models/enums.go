package models

// InterfaceStatus values. The transition is one-directional: an order moves
// from Not Yet Interface to Interface when the reconciliation engine sees a
// matching Flexo record, and never back.
const (
	InterfaceStatusInterface       = "Interface"
	InterfaceStatusNotYetInterface = "Not Yet Interface"
)

// ComparisonStatus is derived on read from ItemId vs ItemIdFlexo.
type ComparisonStatus string

const (
	ComparisonMatch         ComparisonStatus = "Match"
	ComparisonMismatch      ComparisonStatus = "Mismatch"
	ComparisonItemMissing   ComparisonStatus = "Item Missing"
	ComparisonItemDifferent ComparisonStatus = "Item Different"
	ComparisonBothMissing   ComparisonStatus = "Both Missing"
)

const (
	ReconcileRunStatusQueued  = "queued"
	ReconcileRunStatusRunning = "running"
	ReconcileRunStatusSuccess = "success"
	ReconcileRunStatusFailed  = "failed"
	ReconcileRunStatusPartial = "partial"
)

const (
	ReconcileTriggeredManual   = "manual"
	ReconcileTriggeredSchedule = "schedule"
	ReconcileTriggeredSystem   = "system"
)
