// Package transport defines the presentation/provisioning boundary of the
// routing core. The core hands domain payloads across this interface; how
// they are rendered (embeds, mentions, attachments) and carried over the
// chat platform is the adapter's business.
package transport

import (
	"context"
	"fmt"

	"github.com/xaenox/modmail/internal/models"
)

// Notice is a message delivered to a single user, rendered by the adapter.
type Notice struct {
	Title  string
	Body   string
	From   string
	Fields map[string]string
	Footer string
}

// Transport is the external collaborator the core routes through. Surface
// refs are opaque handles (for Discord, channel ids).
type Transport interface {
	// ProvisionSurface creates the communication surface for a fresh thread
	// and returns its ref. Failures wrap ProvisioningError.
	ProvisionSurface(ctx context.Context, policy *models.GuildPolicy, user models.UserProfile) (string, error)

	// SurfaceExists reports whether a previously provisioned surface still
	// resolves.
	SurfaceExists(ctx context.Context, guildID, surfaceRef string) bool

	// ForwardToSurface renders a user message into the thread surface.
	// header, when non-nil, is the first-contact user-info summary.
	ForwardToSurface(ctx context.Context, surfaceRef string, msg models.InboundMessage, from models.UserProfile, header *models.UserSummary) error

	// DeliverToUser sends a notice to the user's private channel.
	DeliverToUser(ctx context.Context, userID string, notice Notice) error

	// ArchiveSurface renames/locks the surface after close.
	ArchiveSurface(ctx context.Context, guildID, surfaceRef string) error

	// DeleteSurface removes the surface after close.
	DeleteSurface(ctx context.Context, guildID, surfaceRef, reason string) error

	// Profile fetches account/membership data for eligibility checks.
	Profile(ctx context.Context, guildID, userID string) (models.UserProfile, error)
}

// ProvisioningError reports a failed surface creation: missing
// configuration, insufficient permission, platform refusal.
type ProvisioningError struct {
	GuildID string
	Err     error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning surface in guild %s: %v", e.GuildID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// DeliveryError reports a failed delivery to a surface or user.
type DeliveryError struct {
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering to %s: %v", e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
