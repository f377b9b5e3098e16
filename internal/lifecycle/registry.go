package lifecycle

import (
	"context"
	"errors"
	"strings"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/audit"
	"toolvault.org/internal/auth"
	"toolvault.org/internal/ids"
)

// RegisterAssetInput describes a new asset entering the registry.
type RegisterAssetInput struct {
	Code        string
	Name        string
	Description string
	Location    string
}

// RegisterAsset creates an asset as available at version 1. The creation is
// audited like any other transition.
func (s *Service) RegisterAsset(ctx context.Context, p auth.Principal, in RegisterAssetInput) (asset.Asset, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" {
		return asset.Asset{}, errValidation("code")
	}
	if in.Name == "" {
		return asset.Asset{}, errValidation("name")
	}
	if err := authorize(p, auth.PermAssetsRegister, "asset.register"); err != nil {
		return asset.Asset{}, err
	}

	now := s.now()
	a := asset.Asset{
		ID:          ids.New(),
		Code:        in.Code,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Status:      asset.StatusAvailable,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry := s.auditEntry(p, "asset.register", "asset", a.ID, a.ID, "", string(a.Status))

	err := s.commit(ctx, a.ID, "asset.register", func(tx Tx) error {
		if err := tx.RegisterAsset(a); err != nil {
			return err
		}
		return tx.AppendAudit(entry)
	})
	if err != nil {
		if errors.Is(err, asset.ErrCodeTaken) {
			return asset.Asset{}, errDuplicateActive("asset", in.Code)
		}
		return asset.Asset{}, err
	}
	audit.Emit(ctx, entry)
	return a, nil
}

// GetAsset returns the full asset record. Read-only, lock-free.
func (s *Service) GetAsset(ctx context.Context, id string) (asset.Asset, error) {
	if id == "" {
		return asset.Asset{}, errValidation("asset_id")
	}
	return s.loadAsset(ctx, id)
}

// GetAssetStatus returns the canonical status and version of an asset.
// Read-only, lock-free.
func (s *Service) GetAssetStatus(ctx context.Context, id string) (asset.Status, uint64, error) {
	a, err := s.GetAsset(ctx, id)
	if err != nil {
		return "", 0, err
	}
	return a.Status, a.Version, nil
}

// ListAssets returns all registered assets.
func (s *Service) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	return s.repo.ListAssets(ctx)
}
