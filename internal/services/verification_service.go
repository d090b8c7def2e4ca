// Package services – VerificationService
//
// This file implements the identity verification workflow. A user submits one
// request at a time; an admin approves or rejects it. Each step updates the
// verification state shown on the user's profile and appends to the audit
// log, inside the same transaction.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Verification types.
const (
	VerifyEmail    = "email"
	VerifyDocument = "document"
	VerifyManual   = "manual"
)

// Request states and log actions.
const (
	requestPending  = "pending"
	requestApproved = "approved"
	requestRejected = "rejected"

	actionSubmitted = "submitted"
)

// VerificationInput describes what the user submits for review.
type VerificationInput struct {
	Type         string  `json:"verification_type"`
	DocumentPath *string `json:"document_path,omitempty"`
	DocumentType *string `json:"document_type,omitempty"`
	EmailDomain  *string `json:"email_domain,omitempty"`
}

// VerificationStatus is a request together with its audit trail.
type VerificationStatus struct {
	Request *domain.VerificationRequest `json:"request"`
	Logs    []domain.VerificationLog    `json:"logs"`
}

// VerificationService runs the verification workflow.
type VerificationService struct {
	DB *gorm.DB
}

// Submit opens a verification request for the user and marks the profile
// pending.
//
// Errors:
//   - ErrInvalidInput: unknown user or verification type, or a document
//     request without a document path.
//   - ErrVerificationPending: the user already has a request under review.
//   - ErrEmployerNotFound / ErrCandidateNotFound: no profile exists yet.
func (s *VerificationService) Submit(ctx context.Context, userID string, userType domain.UserType, in VerificationInput) (*domain.VerificationRequest, error) {
	tr := otel.Tracer("services/VerificationService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("user.type", string(userType)),
			attribute.String("verification.type", in.Type),
		),
	)
	defer span.End()

	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.DocumentPath = optionalText(in.DocumentPath)
	in.DocumentType = optionalText(in.DocumentType)
	in.EmailDomain = optionalText(in.EmailDomain)
	if strings.TrimSpace(userID) == "" || !userType.Valid() {
		return nil, ErrInvalidInput
	}
	switch in.Type {
	case VerifyEmail, VerifyManual:
	case VerifyDocument:
		if in.DocumentPath == nil {
			return nil, ErrInvalidInput
		}
	default:
		return nil, ErrInvalidInput
	}

	var vr *domain.VerificationRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := repo.HasPendingVerification(ctx, tx, userID)
		if err != nil {
			return err
		}
		if pending {
			return ErrVerificationPending
		}

		if err := repo.SetVerification(ctx, tx, userType, userID, domain.VerificationPending); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return profileNotFound(userType)
			}
			return err
		}

		vr = &domain.VerificationRequest{
			UserID:           userID,
			UserType:         userType,
			VerificationType: in.Type,
			DocumentPath:     in.DocumentPath,
			DocumentType:     in.DocumentType,
			EmailDomain:      in.EmailDomain,
		}
		if err := repo.CreateVerificationRequest(ctx, tx, vr); err != nil {
			return err
		}
		return repo.AppendVerificationLog(ctx, tx, vr.ID, actionSubmitted, userID, "user", map[string]any{
			"verification_type": in.Type,
		})
	})
	if err != nil {
		return nil, err
	}
	return vr, nil
}

// Review approves or rejects a pending request and updates the profile.
//
// Errors:
//   - ErrVerificationNotFound: unknown request id.
//   - ErrVerificationReviewed: the request was already reviewed.
func (s *VerificationService) Review(ctx context.Context, adminID, requestID string, approve bool, notes string) (*domain.VerificationRequest, error) {
	tr := otel.Tracer("services/VerificationService")
	ctx, span := tr.Start(ctx, "Review",
		trace.WithAttributes(
			attribute.String("admin.id", adminID),
			attribute.String("verification.id", requestID),
			attribute.Bool("approve", approve),
		),
	)
	defer span.End()

	status, profile := requestRejected, domain.VerificationRejected
	if approve {
		status, profile = requestApproved, domain.VerificationVerified
	}
	n := optionalText(&notes)

	var vr *domain.VerificationRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		got, err := repo.GetVerificationRequest(ctx, tx, requestID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrVerificationNotFound
		}
		if err != nil {
			return err
		}
		if got.Status != requestPending {
			return ErrVerificationReviewed
		}

		if err := repo.ReviewVerificationRequest(ctx, tx, got.ID, status, adminID, n); err != nil {
			if errors.Is(err, repo.ErrStaleStatus) {
				return ErrVerificationReviewed
			}
			return err
		}
		// The profile may have been removed out of band; the review still stands.
		if err := repo.SetVerification(ctx, tx, got.UserType, got.UserID, profile); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		details := map[string]any{}
		if n != nil {
			details["notes"] = *n
		}
		if err := repo.AppendVerificationLog(ctx, tx, got.ID, status, adminID, "admin", details); err != nil {
			return err
		}

		vr, err = repo.GetVerificationRequest(ctx, tx, got.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vr, nil
}

// Status returns the user's latest request and its audit trail, or
// ErrVerificationNotFound when the user never submitted one.
func (s *VerificationService) Status(ctx context.Context, userID string) (*VerificationStatus, error) {
	vr, err := repo.LatestVerificationRequest(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrVerificationNotFound
	}
	if err != nil {
		return nil, err
	}
	logs, err := repo.ListVerificationLogs(ctx, s.DB, vr.ID)
	if err != nil {
		return nil, err
	}
	return &VerificationStatus{Request: vr, Logs: logs}, nil
}

func profileNotFound(t domain.UserType) error {
	if t == domain.UserEmployer {
		return ErrEmployerNotFound
	}
	return ErrCandidateNotFound
}
