package auth

// Capability keys checked by the lifecycle orchestrator before any mutation.
const (
	PermAssetsRegister = "assets.register"

	PermMovementsCreate   = "movements.create"
	PermMovementsApprove  = "movements.approve"
	PermMovementsComplete = "movements.complete"
	PermMovementsCancel   = "movements.cancel"

	PermCalibrationSend    = "calibration.send"
	PermCalibrationReceive = "calibration.receive"

	PermQuarantinePlace    = "quarantine.place"
	PermQuarantineResolve  = "quarantine.resolve"
	PermQuarantineEscalate = "quarantine.escalate"

	PermDecommissionRequest  = "decommission.request"
	PermDecommissionApprove  = "decommission.approve"
	PermDecommissionComplete = "decommission.complete"
)

var BuiltinPermissions = []Permission{
	{Key: PermAssetsRegister, Description: "Register assets in the registry"},
	{Key: PermMovementsCreate, Description: "Create entry/exit movements"},
	{Key: PermMovementsApprove, Description: "Approve pending movements"},
	{Key: PermMovementsComplete, Description: "Complete approved movements"},
	{Key: PermMovementsCancel, Description: "Cancel pending or approved movements"},
	{Key: PermCalibrationSend, Description: "Send assets to a calibration provider"},
	{Key: PermCalibrationReceive, Description: "Receive assets back from calibration"},
	{Key: PermQuarantinePlace, Description: "Place assets in quarantine"},
	{Key: PermQuarantineResolve, Description: "Resolve quarantine holds"},
	{Key: PermQuarantineEscalate, Description: "Escalate quarantine holds"},
	{Key: PermDecommissionRequest, Description: "Request asset decommission"},
	{Key: PermDecommissionApprove, Description: "Approve decommission requests"},
	{Key: PermDecommissionComplete, Description: "Complete approved decommissions"},
}

// Builtin role names seeded by the store.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// BuiltinRolePermissions maps seeded roles to their capability sets.
// Operators work the floor, supervisors approve, admins retire assets.
var BuiltinRolePermissions = map[string][]string{
	RoleOperator: {
		PermMovementsCreate,
		PermCalibrationSend,
		PermCalibrationReceive,
		PermQuarantinePlace,
	},
	RoleSupervisor: {
		PermAssetsRegister,
		PermMovementsCreate,
		PermMovementsApprove,
		PermMovementsComplete,
		PermMovementsCancel,
		PermCalibrationSend,
		PermCalibrationReceive,
		PermQuarantinePlace,
		PermQuarantineResolve,
		PermQuarantineEscalate,
		PermDecommissionRequest,
	},
	RoleAdmin: {
		PermAssetsRegister,
		PermMovementsCreate,
		PermMovementsApprove,
		PermMovementsComplete,
		PermMovementsCancel,
		PermCalibrationSend,
		PermCalibrationReceive,
		PermQuarantinePlace,
		PermQuarantineResolve,
		PermQuarantineEscalate,
		PermDecommissionRequest,
		PermDecommissionApprove,
		PermDecommissionComplete,
	},
}
