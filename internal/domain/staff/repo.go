// Package staff resolves staff membership, currently just the staff-to-
// hospital mapping the realtime gateway uses to place staff connections in
// their hospital room.
package staff

import (
	"context"
)

type Repository interface {
	HospitalForStaff(ctx context.Context, userID string) (string, error)
}
