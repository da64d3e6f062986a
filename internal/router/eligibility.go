package router

import (
	"time"

	"github.com/xaenox/modmail/internal/models"
)

// Eligible reports whether the profile satisfies the guild's requirements.
// Pure function over externally-supplied profile data.
func Eligible(profile models.UserProfile, req models.Requirements, now time.Time) bool {
	if req.MinAccountAge > 0 && now.Sub(profile.CreatedAt) < req.MinAccountAge {
		return false
	}

	if req.RequireMember {
		if !profile.IsMember {
			return false
		}
		if req.MinServerAge > 0 && now.Sub(profile.JoinedAt) < req.MinServerAge {
			return false
		}
	}

	return true
}
