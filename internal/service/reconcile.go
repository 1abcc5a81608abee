package service

import "github.com/iliyamo/seat-tracker/internal/model"

// FindOccupant scans every non-vacant seat for user and returns the first
// seat id (in id order) bound to it.  The device sentinel never matches.
// Seat counts are small and fixed, so a linear scan is enough; a larger
// deployment would keep a user→seat index updated with every commit.
func FindOccupant(m model.Mapping, user string) (string, bool) {
	if user == "" || user == model.DeviceOccupant {
		return "", false
	}
	for _, id := range m.IDs() {
		s := m[id]
		if s.State != model.StateVacant && s.Occupant == user {
			return id, true
		}
	}
	return "", false
}
