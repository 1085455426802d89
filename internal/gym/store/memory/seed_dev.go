package memory

import (
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// SeedDev loads the same dev catalog the sqlite store seeds: three plans, five
// members and their payments, anchored at now.
func SeedDev(now time.Time, members *MembershipStore, plans *PlanCatalog, billing *BillingLedger) {
	eight := 8
	plans.Put(types.Plan{ID: "plan_libre", Name: "Pase Libre", CycleLengthDays: 30})
	plans.Put(types.Plan{ID: "plan_8", Name: "8 Clases", VisitLimit: &eight, CycleLengthDays: 30})
	plans.Put(types.Plan{
		ID:                "plan_manana",
		Name:              "Turno Mañana",
		CycleLengthDays:   30,
		RestrictToWindows: true,
		Windows:           []types.AccessWindow{{StartMinute: 420, EndMinute: 720}},
	})

	for _, m := range []types.Member{
		{ID: "mem_ana", ExternalKey: "30111222", Name: "Ana Gómez", Status: types.MemberActive, PlanRef: "plan_libre"},
		{ID: "mem_bruno", ExternalKey: "30222333", Name: "Bruno Díaz", Status: types.MemberActive, PlanRef: "plan_8"},
		{ID: "mem_carla", ExternalKey: "30333444", Name: "Carla Ruiz", Status: types.MemberActive, PlanRef: "plan_8"},
		{ID: "mem_diego", ExternalKey: "30444555", Name: "Diego Sosa", Status: types.MemberInactive, PlanRef: "plan_libre"},
		{ID: "mem_elena", ExternalKey: "30555666", Name: "Elena Paz", Status: types.MemberActive},
	} {
		members.Put(m)
	}

	day := func(daysAgo int) time.Time {
		y, m, d := now.UTC().AddDate(0, 0, -daysAgo).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	billing.Record(types.PaymentEvent{MemberID: "mem_ana", Date: day(5), AmountCents: 2500000, Status: types.PaymentPaid})
	billing.Record(types.PaymentEvent{MemberID: "mem_bruno", Date: day(12), AmountCents: 1800000, Status: types.PaymentPaid})
	billing.Record(types.PaymentEvent{MemberID: "mem_carla", Date: day(45), AmountCents: 1800000, Status: types.PaymentPaid})
}
