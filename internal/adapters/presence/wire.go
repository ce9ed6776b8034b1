package presence

import (
	"errors"

	"github.com/okian/ridetrack/internal/domain/model"
)

// Inbound payload shapes. These mirror what the backend publishes and must
// not drift.

// wireInfo is the info block attached to presence members.
type wireInfo struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// wireMember is one presence member: member_added / member_removed payloads
// and the values of a snapshot's members map.
type wireMember struct {
	ID   string   `json:"id"`
	Info wireInfo `json:"info"`
}

func (m wireMember) location() model.RiderLocation {
	return model.RiderLocation{ID: m.ID, Name: m.Info.Name, Lat: m.Info.Lat, Lng: m.Info.Lng}
}

// wireSnapshot is the subscription_succeeded payload on presence channels.
type wireSnapshot struct {
	Members map[string]wireMember `json:"members"`
}

// wireLocation is the rider.location.update payload.
type wireLocation struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// wireAssignment is the order_item.assigned payload on the private channel.
type wireAssignment struct {
	OrderItemID string `json:"orderItemId"`
	RiderID     string `json:"riderId"`
}

var (
	errBadMember     = errors.New("member payload missing id or valid coordinates")
	errBadAssignment = errors.New("assignment payload missing orderItemId or riderId")
	errWrongChannel  = errors.New("assignment event outside the private channel")
)
