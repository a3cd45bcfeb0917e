package shared

// Point-of-sale permissions declared for RBAC.
const (
	PermPOSShiftOperate   = "pos.shift.operate"
	PermPOSShiftView      = "pos.shift.view"
	PermPOSShiftReconcile = "pos.shift.reconcile"
)

// POSScopes lists all permissions related to point-of-sale shifts.
func POSScopes() []string {
	return []string{
		PermPOSShiftOperate,
		PermPOSShiftView,
		PermPOSShiftReconcile,
	}
}
