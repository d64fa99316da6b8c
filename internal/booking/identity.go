package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/users"
)

// IdentityKind tags which variant an Identity holds.
type IdentityKind string

const (
	KindRegistered IdentityKind = "registered"
	KindGuest      IdentityKind = "guest"
)

// Identity is the resolved patient: either a registered user or a guest.
type Identity struct {
	Kind   IdentityKind
	UserID string
	Guest  appointments.Guest

	// phoneUpdate is a phone to store on the caller's profile once the
	// booking commits.
	phoneUpdate string
}

// Registered binds to an existing user.
func Registered(userID string) Identity {
	return Identity{Kind: KindRegistered, UserID: userID}
}

// GuestIdentity embeds name and phone on the appointment.
func GuestIdentity(name, phone string) Identity {
	return Identity{Kind: KindGuest, Guest: appointments.Guest{Name: name, Phone: phone}}
}

// PatientRef converts the identity into the stored reference.
func (i Identity) PatientRef() appointments.PatientRef {
	if i.Kind == KindRegistered {
		return appointments.PatientRef{UserID: i.UserID}
	}
	g := i.Guest
	return appointments.PatientRef{Guest: &g}
}

// GuestDetails are the name and phone typed in by a patient without an account.
type GuestDetails struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (g *GuestDetails) provided() bool {
	return g != nil && (strings.TrimSpace(g.Name) != "" || strings.TrimSpace(g.Phone) != "")
}

// IdentityResolver picks the patient for a booking, in priority order:
// guest details whose phone belongs to a user bind to that user; other guest
// details become an embedded guest; otherwise the authenticated caller is
// used.
type IdentityResolver struct {
	users users.Store
}

func NewIdentityResolver(store users.Store) *IdentityResolver {
	if store == nil {
		panic("booking: user store required")
	}
	return &IdentityResolver{users: store}
}

// Resolve never writes. A phone the caller asked to save is carried on the
// returned Identity and applied by ApplyProfileUpdates after the booking
// commits.
func (r *IdentityResolver) Resolve(ctx context.Context, callerID string, guest *GuestDetails, phone string) (Identity, error) {
	if guest.provided() {
		name := strings.TrimSpace(guest.Name)
		guestPhone := users.NormalizePhone(guest.Phone)

		if guestPhone != "" {
			u, err := r.users.FindByPhone(ctx, guestPhone)
			switch {
			case err == nil:
				return Registered(u.ID), nil
			case !errors.Is(err, users.ErrNotFound):
				return Identity{}, fmt.Errorf("booking: match guest phone: %w", err)
			}
		}
		if name == "" {
			return Identity{}, &GuestDetailsError{Field: "name"}
		}
		if guestPhone == "" {
			return Identity{}, &GuestDetailsError{Field: "phone"}
		}
		return GuestIdentity(name, guestPhone), nil
	}

	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return Identity{}, ErrUnauthenticated
	}
	u, err := r.users.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Identity{}, ErrPatientNotFound
		}
		return Identity{}, fmt.Errorf("booking: load caller: %w", err)
	}
	id := Registered(u.ID)
	if p := users.NormalizePhone(phone); p != "" && strings.TrimSpace(u.Phone) == "" {
		id.phoneUpdate = p
	}
	return id, nil
}

// ApplyProfileUpdates saves the caller's phone when Resolve asked for it.
func (r *IdentityResolver) ApplyProfileUpdates(ctx context.Context, id Identity) error {
	if id.Kind != KindRegistered || id.phoneUpdate == "" {
		return nil
	}
	if err := r.users.UpdatePhone(ctx, id.UserID, id.phoneUpdate); err != nil {
		return fmt.Errorf("booking: save caller phone: %w", err)
	}
	return nil
}
