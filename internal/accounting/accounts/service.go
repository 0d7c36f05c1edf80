package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// AuditPort records account lifecycle changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates chart-of-accounts operations.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput describes a new chart position.
type CreateInput struct {
	Code         string
	NameAr       string
	NameEn       string
	Type         AccountType
	ParentCode   string
	CurrencyCode string
	IsSystem     bool
	Actor        string
}

// Create inserts a new account, enforcing the hierarchical numbering rule
// against its parent and flipping the parent to non-leaf on first child.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Account, error) {
	now := s.now()
	var parent *Account
	level := 1
	var parentID *uuid.UUID
	if in.ParentCode != "" {
		var err error
		parent, err = s.repo.GetByCode(ctx, in.ParentCode)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		if parent.Meta.IsDeleted() || !parent.IsActive {
			return nil, ErrParentNotEligible
		}
		if err := ValidateChildCode(parent.Code, in.Code, parent.Level); err != nil {
			return nil, err
		}
		level = parent.Level + 1
		parentID = &parent.ID
	}
	account, err := NewAccount(NewAccountInput{
		Code:         in.Code,
		NameAr:       in.NameAr,
		NameEn:       in.NameEn,
		Type:         in.Type,
		ParentID:     parentID,
		Level:        level,
		CurrencyCode: in.CurrencyCode,
		IsSystem:     in.IsSystem,
		Actor:        in.Actor,
		At:           now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, account); err != nil {
		return nil, err
	}
	if parent != nil && parent.IsLeaf {
		parent.MarkAsParent(in.Actor, now)
		if err := s.repo.Update(ctx, parent); err != nil {
			return nil, err
		}
	}
	s.record(ctx, in.Actor, "account.create", account.ID, nil, snapshot(account))
	return account, nil
}

// List returns non-deleted accounts ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx, false)
}

// GetByCode resolves a single non-deleted account.
func (s *Service) GetByCode(ctx context.Context, code string) (*Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// ChangeType switches an account category when no postings reference it.
func (s *Service) ChangeType(ctx context.Context, code string, newType AccountType, actor string) (*Account, error) {
	return s.mutate(ctx, code, actor, "account.change_type", func(a *Account, at time.Time) error {
		return a.ChangeType(newType, actor, at)
	})
}

// Deactivate hides an account from new postings.
func (s *Service) Deactivate(ctx context.Context, code, actor string) (*Account, error) {
	return s.mutate(ctx, code, actor, "account.deactivate", func(a *Account, at time.Time) error {
		return a.Deactivate(actor, at)
	})
}

// Activate re-enables a deactivated account.
func (s *Service) Activate(ctx context.Context, code, actor string) (*Account, error) {
	return s.mutate(ctx, code, actor, "account.activate", func(a *Account, at time.Time) error {
		return a.Activate(actor, at)
	})
}

// TreeNode is one account with its children, for hierarchy views.
type TreeNode struct {
	Account  Account    `json:"account"`
	Children []TreeNode `json:"children,omitempty"`
}

// Tree assembles the full chart as a forest rooted at level-1 accounts,
// ordered by code at every level.
func (s *Service) Tree(ctx context.Context) ([]TreeNode, error) {
	accounts, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, err
	}
	byParent := make(map[uuid.UUID][]Account)
	var roots []Account
	for _, a := range accounts {
		if a.ParentID == nil {
			roots = append(roots, a)
			continue
		}
		byParent[*a.ParentID] = append(byParent[*a.ParentID], a)
	}
	var build func(a Account) TreeNode
	build = func(a Account) TreeNode {
		node := TreeNode{Account: a}
		for _, child := range byParent[a.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	nodes := make([]TreeNode, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, build(root))
	}
	return nodes, nil
}

// SoftDelete marks a leaf account deleted.
func (s *Service) SoftDelete(ctx context.Context, code, actor string) (*Account, error) {
	return s.mutate(ctx, code, actor, "account.soft_delete", func(a *Account, at time.Time) error {
		return a.SoftDelete(actor, at)
	})
}

func (s *Service) mutate(ctx context.Context, code, actor, action string, fn func(*Account, time.Time) error) (*Account, error) {
	account, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	before := snapshot(account)
	if err := fn(account, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, account); err != nil {
		return nil, err
	}
	s.record(ctx, actor, action, account.ID, before, snapshot(account))
	return account, nil
}

func (s *Service) record(ctx context.Context, actor, action string, id uuid.UUID, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "account",
		EntityID: id.String(),
		Before:   before,
		After:    after,
		At:       s.now(),
	})
}

func snapshot(a *Account) map[string]any {
	return map[string]any{
		"code":          a.Code,
		"type":          string(a.Type),
		"level":         a.Level,
		"is_leaf":       a.IsLeaf,
		"allow_posting": a.AllowPosting,
		"is_active":     a.IsActive,
		"has_postings":  a.HasPostings,
		"deleted":       a.Meta.IsDeleted(),
	}
}
