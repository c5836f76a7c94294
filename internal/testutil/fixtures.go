package testutil

import (
	"fmt"
	"time"

	"github.com/roach88/reqsync/internal/model"
)

// Epoch is the creation time of the first fixture requisition.
var Epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// Requisition builds the i-th fixture record (zero-based). Records are an
// hour apart, alternate between factory and production, and are assigned to
// the fitter "Rui".
func Requisition(i int) model.Requisition {
	r := model.Requisition{
		ID:                fmt.Sprintf("req-%04d", i+1),
		RequisitionNumber: fmt.Sprintf("R-%d", 1000+i),
		Type:              model.TypeFactory,
		CreatedAt:         Epoch.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
		CreatedBy:         "ana",
		Fitter:            "Rui",
		ClientName:        fmt.Sprintf("Client %d", i+1),
		Services: []model.ServiceItem{
			{Code: "SRV-01", Description: "cabinet assembly", Quantity: model.QuantityOf(int64(i%3 + 1)), Unit: "un"},
		},
	}
	if i%2 == 1 {
		r.Type = model.TypeProduction
		r.Services = []model.ServiceItem{
			{Environment: "kitchen", Description: "countertop", Quantity: model.QuantityOf(1), Color: "white"},
		}
		r.DeliveryItems = []model.DeliveryItem{{Description: "doors", Quantity: model.QuantityOf(2)}}
	}
	return r
}

// Requisitions builds n fixture records in creation order (oldest first),
// the order the API returns them in.
func Requisitions(n int) model.Snapshot {
	s := make(model.Snapshot, n)
	for i := range s {
		s[i] = Requisition(i)
	}
	return s
}

// Manager is a manager account.
func Manager() model.User {
	return model.User{Username: "gestora", Name: "Gestora", Role: model.RoleManager}
}

// Operator is an operations account.
func Operator() model.User {
	return model.User{Username: "ops", Name: "Operações", Role: model.RoleOperations}
}

// Fitter is a fitter account with the given display name.
func Fitter(username, name string) model.User {
	return model.User{Username: username, Name: name, Role: model.RoleFitter}
}
