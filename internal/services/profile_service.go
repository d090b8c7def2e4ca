// Package services – ProfileService
//
// This file manages employer and candidate profiles and the employer-facing
// candidate search. Profiles are keyed by the identity subject and created on
// first write. Tier and verification state are never set through profile
// input; they change only through reconciliation, admin action, or the
// verification workflow.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/repo"
	"github.com/tbourn/noticeboard-backend/internal/search"
	"github.com/tbourn/noticeboard-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxNameRunes  = 255
	maxSkills     = 50
	maxSkillRunes = 64
)

// Candidate visibility values.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// EmployerInput is the editable part of an employer profile.
type EmployerInput struct {
	Email       string  `json:"email"`
	CompanyName string  `json:"company_name"`
	FullName    *string `json:"full_name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Website     *string `json:"website,omitempty"`
}

// CandidateInput is the editable part of a candidate profile.
type CandidateInput struct {
	Email         string     `json:"email"`
	FullName      *string    `json:"full_name,omitempty"`
	Skills        []string   `json:"skills"`
	SalaryMin     *int64     `json:"salary_min,omitempty"`
	SalaryMax     *int64     `json:"salary_max,omitempty"`
	NoticeEndDate *time.Time `json:"notice_end_date,omitempty"`
	Visibility    string     `json:"visibility"`
}

// SearchQuery filters and ranks public candidates.
type SearchQuery struct {
	Skills       []string
	SalaryMax    *int64
	AvailableBy  *time.Time
	VerifiedOnly bool
	Page         int
	PageSize     int
}

// CandidateCard is what a search reveals about a candidate. Contact details
// stay behind the contact gate.
type CandidateCard struct {
	ID            string     `json:"id"`
	Skills        []string   `json:"skills"`
	SalaryMin     *int64     `json:"salary_min,omitempty"`
	SalaryMax     *int64     `json:"salary_max,omitempty"`
	NoticeEndDate *time.Time `json:"notice_end_date,omitempty"`
	IsVerified    bool       `json:"is_verified"`
	Score         float64    `json:"score"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ProfileService manages employer and candidate profiles.
type ProfileService struct {
	DB *gorm.DB

	// Locale drives case folding of emails and skills. Defaults to English.
	Locale language.Tag
}

func (s *ProfileService) locale() language.Tag {
	if s.Locale == language.Und {
		return language.English
	}
	return s.Locale
}

// UpsertEmployer creates or updates the employer profile for id.
func (s *ProfileService) UpsertEmployer(ctx context.Context, id string, in EmployerInput) (*domain.Employer, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "UpsertEmployer",
		trace.WithAttributes(attribute.String("employer.id", id)),
	)
	defer span.End()

	id = strings.TrimSpace(id)
	email, err := s.normalizeEmail(in.Email)
	if err != nil || id == "" {
		return nil, ErrInvalidProfile
	}
	company := collapseSpaces(in.CompanyName)
	if company == "" || utf8.RuneCountInString(company) > maxNameRunes {
		return nil, ErrInvalidProfile
	}

	e := &domain.Employer{
		ID:          id,
		Email:       email,
		CompanyName: company,
		FullName:    optionalText(in.FullName),
		Phone:       optionalText(in.Phone),
		Website:     optionalText(in.Website),
	}
	if tooLong(e.FullName) || tooLong(e.Website) || tooLong(e.Phone) {
		return nil, ErrInvalidProfile
	}
	if err := repo.UpsertEmployer(ctx, s.DB, e); err != nil {
		return nil, err
	}
	return repo.GetEmployer(ctx, s.DB, id)
}

// GetEmployer returns the employer profile, or ErrEmployerNotFound.
func (s *ProfileService) GetEmployer(ctx context.Context, id string) (*domain.Employer, error) {
	e, err := repo.GetEmployer(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrEmployerNotFound
	}
	return e, err
}

// SetTier overrides the employer's subscription tier. It is an admin
// operation; paid tiers normally arrive through reconciliation.
func (s *ProfileService) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	if !tier.Valid() {
		return ErrInvalidTier
	}
	err := repo.SetEmployerTier(ctx, s.DB, id, tier)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrEmployerNotFound
	}
	return err
}

// UpsertCandidate creates or updates the candidate profile for id.
func (s *ProfileService) UpsertCandidate(ctx context.Context, id string, in CandidateInput) (*domain.Candidate, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "UpsertCandidate",
		trace.WithAttributes(attribute.String("candidate.id", id)),
	)
	defer span.End()

	id = strings.TrimSpace(id)
	email, err := s.normalizeEmail(in.Email)
	if err != nil || id == "" {
		return nil, ErrInvalidProfile
	}
	if in.SalaryMin != nil && *in.SalaryMin < 0 || in.SalaryMax != nil && *in.SalaryMax < 0 {
		return nil, ErrInvalidProfile
	}
	if in.SalaryMin != nil && in.SalaryMax != nil && *in.SalaryMin > *in.SalaryMax {
		return nil, ErrInvalidProfile
	}
	visibility := strings.ToLower(strings.TrimSpace(in.Visibility))
	switch visibility {
	case "":
		visibility = VisibilityPrivate
	case VisibilityPrivate, VisibilityPublic:
	default:
		return nil, ErrInvalidProfile
	}
	skills, err := s.normalizeSkills(in.Skills)
	if err != nil {
		return nil, err
	}

	c := &domain.Candidate{
		ID:         id,
		Email:      email,
		FullName:   optionalText(in.FullName),
		Skills:     skills,
		SalaryMin:  in.SalaryMin,
		SalaryMax:  in.SalaryMax,
		Visibility: visibility,
	}
	if tooLong(c.FullName) {
		return nil, ErrInvalidProfile
	}
	if in.NoticeEndDate != nil {
		t := in.NoticeEndDate.UTC()
		c.NoticeEndDate = &t
	}
	if err := repo.UpsertCandidate(ctx, s.DB, c); err != nil {
		return nil, err
	}
	return repo.GetCandidate(ctx, s.DB, id)
}

// GetCandidate returns the candidate profile, or ErrCandidateNotFound.
func (s *ProfileService) GetCandidate(ctx context.Context, id string) (*domain.Candidate, error) {
	c, err := repo.GetCandidate(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCandidateNotFound
	}
	return c, err
}

// Search returns a page of public candidates ranked by skill overlap with
// q.Skills, most recently updated first among equal scores, and the total
// number of matches.
func (s *ProfileService) Search(ctx context.Context, q SearchQuery) ([]CandidateCard, int64, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.Int("skills", len(q.Skills)),
			attribute.Bool("verified_only", q.VerifiedOnly),
		),
	)
	defer span.End()

	rows, err := repo.ListPublicCandidates(ctx, s.DB, repo.CandidateFilter{
		SalaryMax:    q.SalaryMax,
		AvailableBy:  q.AvailableBy,
		VerifiedOnly: q.VerifiedOnly,
	})
	if err != nil {
		return nil, 0, err
	}

	byID := make(map[string]*domain.Candidate, len(rows))
	docs := make([]search.Doc, 0, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
		docs = append(docs, search.Doc{ID: rows[i].ID, Skills: rows[i].Skills})
	}
	ranked := search.Rank(q.Skills, docs)

	total := int64(len(ranked))
	offset, limit := utils.Window(q.Page, q.PageSize)
	if offset >= len(ranked) {
		return []CandidateCard{}, total, nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}

	out := make([]CandidateCard, 0, end-offset)
	for _, r := range ranked[offset:end] {
		c := byID[r.ID]
		out = append(out, CandidateCard{
			ID:            c.ID,
			Skills:        c.Skills,
			SalaryMin:     c.SalaryMin,
			SalaryMax:     c.SalaryMax,
			NoticeEndDate: c.NoticeEndDate,
			IsVerified:    c.IsVerified,
			Score:         r.Score,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	return out, total, nil
}

func (s *ProfileService) normalizeEmail(raw string) (string, error) {
	email := cases.Lower(s.locale()).String(strings.TrimSpace(raw))
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") || len(email) > maxNameRunes {
		return "", ErrInvalidProfile
	}
	return email, nil
}

// normalizeSkills trims skills, drops blanks, and removes case-insensitive
// duplicates while keeping the first spelling.
func (s *ProfileService) normalizeSkills(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		skill := collapseSpaces(raw)
		if skill == "" {
			continue
		}
		if utf8.RuneCountInString(skill) > maxSkillRunes {
			return nil, ErrInvalidProfile
		}
		key := search.Normalize(skill)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, skill)
	}
	if len(out) > maxSkills {
		return nil, ErrInvalidProfile
	}
	return out, nil
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func optionalText(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func tooLong(p *string) bool {
	return p != nil && utf8.RuneCountInString(*p) > maxNameRunes
}
