package pg

import (
	"testing"

	"botfleet/internal/core/domain"
)

func TestPlanRobotMerge(t *testing.T) {
	existing := []domain.Robot{
		{RobotID: 1, Name: "invoice-bot", Description: "old desc", IsOnline: true, Active: false, BalancePriority: 5},
		{RobotID: 2, Name: "report-bot", Description: "nightly reports"},
	}

	incoming := []domain.PlatformRobot{
		{ID: 1, Name: "invoice-bot", Description: "new desc"},
		{ID: 2, Name: "report-bot", Description: "nightly reports"},
		{ID: 3, Name: "fresh-bot", Description: "brand new"},
		{ID: 0, Name: "broken"},
	}

	plan := planRobotMerge(incoming, existing)

	if len(plan.Inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(plan.Inserts))
	}
	ins := plan.Inserts[0]
	if ins.RobotID != 3 {
		t.Errorf("insert id = %d, want 3", ins.RobotID)
	}
	if ins.IsOnline != domain.NewRobotDefaultOnline || ins.Active != domain.NewRobotDefaultActive {
		t.Errorf("insert defaults = online %v active %v, want online %v active %v",
			ins.IsOnline, ins.Active, domain.NewRobotDefaultOnline, domain.NewRobotDefaultActive)
	}

	if len(plan.Updates) != 1 {
		t.Fatalf("updates = %d, want 1 (unchanged rows must not be rewritten)", len(plan.Updates))
	}
	if plan.Updates[0].RobotID != 1 || plan.Updates[0].Description != "new desc" {
		t.Errorf("update = %+v, want robot 1 with new desc", plan.Updates[0])
	}

	if len(plan.Skipped) != 1 {
		t.Errorf("skipped = %d, want 1", len(plan.Skipped))
	}
	if got := plan.Submitted(len(incoming)); got != 3 {
		t.Errorf("submitted = %d, want 3", got)
	}
}

func TestPlanRobotMergeNeverTouchesOperationalState(t *testing.T) {
	existing := []domain.Robot{
		{RobotID: 7, Name: "bot", Description: "d", IsOnline: true, Active: false},
	}
	incoming := []domain.PlatformRobot{{ID: 7, Name: "renamed", Description: "d"}}

	plan := planRobotMerge(incoming, existing)
	if len(plan.Inserts) != 0 {
		t.Fatalf("inserts = %d, want 0", len(plan.Inserts))
	}
	if len(plan.Updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(plan.Updates))
	}
	// The update carries only name and description; operational columns are
	// not part of the plan at all.
	u := plan.Updates[0]
	if u.Name != "renamed" || u.Description != "d" {
		t.Errorf("update = %+v", u)
	}
}

func TestPlanDeviceMerge(t *testing.T) {
	existing := []domain.Device{
		{DeviceID: 10, Hostname: "vdi-01", UserID: 100, Username: "svc1", License: "ATTENDED", Active: true, AllowsBalancing: true},
		{DeviceID: 11, Hostname: "vdi-02", UserID: 101, Username: "svc2", License: "ATTENDED", Active: true},
	}

	incoming := []domain.Device{
		{DeviceID: 10, Hostname: "vdi-01-renamed", UserID: 100, Username: "svc1", License: "ATTENDED", Active: true},
		{DeviceID: 11, Hostname: "vdi-02", UserID: 101, Username: "svc2", License: "ATTENDED", Active: true},
		{DeviceID: 12, Hostname: "vdi-03", UserID: 0, Username: "", License: domain.DeviceLicenseUnassigned, Active: false},
		{DeviceID: 13, Hostname: "vdi-04", UserID: 103, Username: "svc4", License: domain.DeviceLicenseUnassigned, Active: false},
		{DeviceID: 13, Hostname: "vdi-04-dup", UserID: 999, Username: "dup", License: "ATTENDED", Active: true},
	}

	plan := planDeviceMerge(incoming, existing)

	if len(plan.Ownerless) != 1 || plan.Ownerless[0].DeviceID != 12 {
		t.Fatalf("ownerless = %+v, want device 12", plan.Ownerless)
	}
	if len(plan.Duplicates) != 1 || plan.Duplicates[0] != 13 {
		t.Fatalf("duplicates = %v, want [13]", plan.Duplicates)
	}

	if len(plan.Inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(plan.Inserts))
	}
	if plan.Inserts[0].DeviceID != 13 || plan.Inserts[0].Hostname != "vdi-04" {
		t.Errorf("insert kept wrong occurrence: %+v", plan.Inserts[0])
	}

	if len(plan.Updates) != 1 || plan.Updates[0].DeviceID != 10 {
		t.Fatalf("updates = %+v, want only device 10", plan.Updates)
	}

	if got := plan.Submitted(len(incoming)); got != 3 {
		t.Errorf("submitted = %d, want 3", got)
	}
}

func TestPlanDeviceMergeIgnoresBalancingFlag(t *testing.T) {
	existing := []domain.Device{
		{DeviceID: 20, Hostname: "vdi-20", UserID: 200, Username: "svc", License: "ATTENDED", Active: true, AllowsBalancing: true},
	}
	incoming := []domain.Device{
		{DeviceID: 20, Hostname: "vdi-20", UserID: 200, Username: "svc", License: "ATTENDED", Active: true, AllowsBalancing: false},
	}

	plan := planDeviceMerge(incoming, existing)
	if len(plan.Updates) != 0 {
		t.Errorf("updates = %+v, balancing flag alone must not trigger an update", plan.Updates)
	}
}
