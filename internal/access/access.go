// Package access decides what a viewer may see of an album. Everything here is
// a pure function of its inputs and safe to call from any goroutine.
package access

import (
	"github.com/sefazor/ourphotos-kiosk/internal/models"
)

type Role string

const (
	RoleVisitor Role = "visitor"
	RoleStaff   Role = "staff"
)

// Snapshot is the part of an album the evaluator reads.
type Snapshot struct {
	Status        models.AlbumStatus
	PaymentStatus models.PaymentStatus
}

func SnapshotOf(a *models.Album) Snapshot {
	return Snapshot{Status: a.Status, PaymentStatus: a.PaymentStatus}
}

// LockPolicy decides whether photo content is suppressed entirely.
type LockPolicy func(role Role, requiresPayment bool, rules models.EventAccessRules) bool

// GalleryLockPolicy is used by the visitor gallery: only visitors are locked,
// regardless of free preview.
func GalleryLockPolicy(role Role, requiresPayment bool, _ models.EventAccessRules) bool {
	return role == RoleVisitor && requiresPayment
}

// ViewerLockPolicy is used by the kiosk viewer. It ignores the role and honors
// free preview. The divergence from GalleryLockPolicy is awaiting product
// clarification; keep both until then.
func ViewerLockPolicy(_ Role, requiresPayment bool, rules models.EventAccessRules) bool {
	return requiresPayment && !rules.Rules.AllowFreePreview
}

type Decision struct {
	IsPaid                bool `json:"is_paid"`
	RequiresStaffApproval bool `json:"requires_staff_approval"`
	RequiresPayment       bool `json:"requires_payment"`
	IsBlocked             bool `json:"is_blocked"`
	IsLocked              bool `json:"is_locked"`
	ApplyBlur             bool `json:"apply_blur"`
	ApplyWatermark        bool `json:"apply_watermark"`
	DownloadsBlocked      bool `json:"downloads_blocked"`
}

// Evaluate applies the gallery lock policy.
func Evaluate(album Snapshot, rules models.EventAccessRules, role Role) Decision {
	return EvaluateWith(album, rules, role, GalleryLockPolicy)
}

func EvaluateWith(album Snapshot, rules models.EventAccessRules, role Role, lock LockPolicy) Decision {
	tracking := rules.AlbumTracking.Rules

	// completed never implies paid
	isPaid := album.PaymentStatus == models.PaymentStatusPaid || album.Status == models.AlbumStatusPaid
	requiresApproval := tracking.RequireStaffApproval &&
		album.Status != models.AlbumStatusCompleted &&
		album.Status != models.AlbumStatusPaid
	requiresPayment := tracking.PrintReady && !isPaid

	return Decision{
		IsPaid:                isPaid,
		RequiresStaffApproval: requiresApproval,
		RequiresPayment:       requiresPayment,
		IsBlocked:             role == RoleVisitor && (requiresApproval || requiresPayment),
		IsLocked:              lock(role, requiresPayment, rules),
		ApplyBlur:             requiresPayment && rules.Rules.BlurOnUnpaidGallery && !rules.Rules.AllowFreePreview,
		ApplyWatermark:        requiresPayment,
		DownloadsBlocked:      requiresPayment,
	}
}

type Mode string

const (
	ModeGrid         Mode = "grid"
	ModeBlockedStack Mode = "blocked_stack"
	ModeLocked       Mode = "locked"
)

type CallToAction string

const (
	CallToActionNone            CallToAction = ""
	CallToActionPay             CallToAction = "pay"
	CallToActionWaitForApproval CallToAction = "wait_for_approval"
)

type Presentation struct {
	Mode         Mode         `json:"mode"`
	CallToAction CallToAction `json:"call_to_action,omitempty"`
	Blur         bool         `json:"blur"`
	Watermark    bool         `json:"watermark"`
}

// Presentation maps a decision onto what a surface renders. Locked wins over
// blocked; a blocked viewer never sees the raw grid.
func (d Decision) Presentation() Presentation {
	p := Presentation{Mode: ModeGrid, Blur: d.ApplyBlur, Watermark: d.ApplyWatermark}
	switch {
	case d.IsLocked:
		p.Mode = ModeLocked
	case d.IsBlocked:
		p.Mode = ModeBlockedStack
	}
	if p.Mode != ModeGrid {
		if d.RequiresPayment {
			p.CallToAction = CallToActionPay
		} else if d.RequiresStaffApproval {
			p.CallToAction = CallToActionWaitForApproval
		}
	}
	return p
}
