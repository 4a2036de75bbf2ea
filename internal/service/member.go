package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/members-console/internal/domain/model"
	"github.com/target/members-console/internal/ports"
)

// MemberServiceOptions groups dependencies for MemberService.
type MemberServiceOptions struct {
	Members      ports.MemberRepository       // Required
	Registration ports.RegistrationRepository // Required
	Logger       *slog.Logger                 // Optional
}

// MemberService validates member input before it reaches the resource API.
type MemberService struct {
	members      ports.MemberRepository
	registration ports.RegistrationRepository
	logger       *slog.Logger
}

// NewMemberService constructs a new MemberService.
func NewMemberService(opts MemberServiceOptions) *MemberService {
	if opts.Members == nil {
		panic("MemberRepository is required")
	}
	if opts.Registration == nil {
		panic("RegistrationRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberService{
		members:      opts.Members,
		registration: opts.Registration,
		logger:       logger.With("component", "member_service"),
	}
}

// List returns one page of members.
func (s *MemberService) List(ctx context.Context, opts model.MembersListOptions) (model.CursorPage[model.Member], error) {
	opts.Normalize()
	return s.members.List(ctx, opts)
}

// Get retrieves a member by ID.
func (s *MemberService) Get(ctx context.Context, id string) (*model.Member, error) {
	return s.members.Get(ctx, id)
}

// Create validates and creates a member.
func (s *MemberService) Create(ctx context.Context, in model.MemberInput) (*model.Member, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("validate member: %w", err)
	}
	m, err := s.members.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "member created", "member_id", m.ID)
	return m, nil
}

// Update validates and updates a member.
func (s *MemberService) Update(ctx context.Context, id string, in model.MemberInput) (*model.Member, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("validate member: %w", err)
	}
	m, err := s.members.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "member updated", "member_id", id)
	return m, nil
}

// Delete removes a member.
func (s *MemberService) Delete(ctx context.Context, id string) error {
	if err := s.members.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "member deleted", "member_id", id)
	return nil
}

// Registration returns the registration record of the signed-in principal.
func (s *MemberService) Registration(ctx context.Context) (*model.Registration, error) {
	return s.registration.Registration(ctx)
}

// CompleteRegistration validates and submits the principal's registration.
func (s *MemberService) CompleteRegistration(ctx context.Context, req model.RegistrationRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("validate registration: %w", err)
	}
	if err := s.registration.CompleteRegistration(ctx, req); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "registration completed")
	return nil
}
