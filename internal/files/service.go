package files

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/entitlements"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
	"github.com/taskfolio/taskfolio-backend/pkg/metrics"
)

const (
	bytesPerMb      = int64(1024 * 1024)
	uploadWindowTTL = 48 * time.Hour
	notifyTimeout   = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entitlementSource interface {
	Summary(ctx context.Context, workspaceID uuid.UUID) (entitlements.Snapshot, error)
}

type projectSource interface {
	Get(ctx context.Context, workspaceID, projectID uuid.UUID) (*models.Project, error)
}

type uploadCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(name string) string
}

// ServiceParams groups dependencies for the file service.
type ServiceParams struct {
	Repo              Repository
	Projects          projectSource
	Entitlements      entitlementSource
	Counter           uploadCounter
	Notifier          ScanNotifier
	Audit             *audit.Service
	Logger            *logger.Logger
	QuotaMetrics      *metrics.QuotaMetrics
	TransactionRunner txRunner
	Now               func() time.Time
}

// Service registers upload metadata under the workspace's file quotas and
// kicks off the asynchronous scan.
type Service struct {
	repo         Repository
	projects     projectSource
	entitlements entitlementSource
	counter      uploadCounter
	notifier     ScanNotifier
	audit        *audit.Service
	logger       *logger.Logger
	quotaMetrics *metrics.QuotaMetrics
	txRunner     txRunner
	now          func() time.Time
}

// NewService builds a file service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repo is required")
	}
	if params.Projects == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "project source is required")
	}
	if params.Entitlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement source is required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit service is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:         params.Repo,
		projects:     params.Projects,
		entitlements: params.Entitlements,
		counter:      params.Counter,
		notifier:     params.Notifier,
		audit:        params.Audit,
		logger:       params.Logger,
		quotaMetrics: params.QuotaMetrics,
		txRunner:     params.TransactionRunner,
		now:          params.Now,
	}, nil
}

// RegisterInput captures the metadata of an upload that already landed in
// object storage.
type RegisterInput struct {
	WorkspaceID uuid.UUID
	ProjectID   uuid.UUID
	ActorID     uuid.UUID
	FileName    string
	StoragePath string
	MimeType    string
	SizeBytes   int64
	Tags        []string
}

// Register validates the upload against the per-file size, total storage and
// daily upload ceilings, persists the metadata and requests a scan.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.ProjectFile, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	if _, err := s.projects.Get(ctx, input.WorkspaceID, input.ProjectID); err != nil {
		return nil, err
	}

	snap, err := s.entitlements.Summary(ctx, input.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if limit := snap.Limits.MaxFileSizeMb; limit != nil && input.SizeBytes > int64(*limit)*bytesPerMb {
		s.quotaMetrics.IncRejection("max_file_size_mb")
		return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "file exceeds the plan's size limit").
			WithDetails(map[string]any{
				"limit_mb":   *limit,
				"size_bytes": input.SizeBytes,
			})
	}

	file := &models.ProjectFile{
		ProjectID:        input.ProjectID,
		WorkspaceID:      input.WorkspaceID,
		FileName:         input.FileName,
		StoragePath:      input.StoragePath,
		MimeType:         input.MimeType,
		SizeBytes:        input.SizeBytes,
		Tags:             input.Tags,
		UploadedByUserID: input.ActorID,
		ScanStatus:       "pending",
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if limit := snap.Limits.MaxStorageMb; limit != nil {
			used, err := repo.SumSizeBytes(ctx, input.WorkspaceID)
			if err != nil {
				return err
			}
			if used+input.SizeBytes > int64(*limit)*bytesPerMb {
				s.quotaMetrics.IncRejection("max_storage_mb")
				return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "workspace storage limit reached").
					WithDetails(map[string]any{
						"limit_mb":   *limit,
						"used_bytes": used,
					})
			}
		}
		// The counter increments only after the size and storage checks, so
		// a rejected upload never consumes a daily slot.
		if err := s.checkDailyUploads(ctx, input.WorkspaceID, snap.Limits.MaxDailyUploads); err != nil {
			return err
		}
		return repo.Create(ctx, file)
	})
	if err != nil {
		return nil, err
	}

	s.requestScan(ctx, file)

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID:  input.WorkspaceID,
		Action:       audit.ActionFileUploaded,
		ActorUserID:  &input.ActorID,
		ResourceType: "file",
		ResourceID:   file.ID.String(),
		Metadata: map[string]any{
			"file_name":  input.FileName,
			"size_bytes": input.SizeBytes,
		},
	})
	return file, nil
}

// ListByProject returns the files of a project, newest first.
func (s *Service) ListByProject(ctx context.Context, workspaceID, projectID uuid.UUID) ([]models.ProjectFile, error) {
	if _, err := s.projects.Get(ctx, workspaceID, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID)
}

// checkDailyUploads enforces the fixed-window upload counter. The window key
// carries the UTC date, so the TTL is cleanup only. A counter outage fails
// open: availability of uploads wins over exact quota enforcement.
func (s *Service) checkDailyUploads(ctx context.Context, workspaceID uuid.UUID, limit *int) error {
	if limit == nil || s.counter == nil {
		return nil
	}

	key := s.counter.CounterKey(fmt.Sprintf("uploads:%s:%s", workspaceID, s.now().Format("20060102")))
	count, err := s.counter.IncrWithTTL(ctx, key, uploadWindowTTL)
	if err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "upload counter unavailable")
		return nil
	}
	if count > int64(*limit) {
		s.quotaMetrics.IncRejection("max_daily_uploads")
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "daily upload limit reached").
			WithDetails(map[string]any{
				"limit": *limit,
				"count": count,
			})
	}
	return nil
}

// requestScan publishes the scan request without blocking the upload
// response. Failures are logged; the scanner reconciles missed files from
// storage listings.
func (s *Service) requestScan(ctx context.Context, file *models.ProjectFile) {
	if s.notifier == nil {
		return
	}

	req := ScanRequest{
		FileID:      file.ID.String(),
		ProjectID:   file.ProjectID.String(),
		StoragePath: file.StoragePath,
		MimeType:    file.MimeType,
		FileSize:    file.SizeBytes,
		UserID:      file.UploadedByUserID.String(),
		Tags:        file.Tags,
	}

	notifyCtx := s.logger.WithWorkspaceID(context.WithoutCancel(ctx), file.WorkspaceID.String())
	go func() {
		notifyCtx, cancel := context.WithTimeout(notifyCtx, notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyScan(notifyCtx, req); err != nil {
			s.logger.Error(notifyCtx, "scan notification failed", err)
		}
	}()
}

func (in RegisterInput) validate() error {
	missing := []string{}
	if strings.TrimSpace(in.FileName) == "" {
		missing = append(missing, "file_name")
	}
	if strings.TrimSpace(in.StoragePath) == "" {
		missing = append(missing, "storage_path")
	}
	if strings.TrimSpace(in.MimeType) == "" {
		missing = append(missing, "mime_type")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"fields": missing})
	}
	if in.SizeBytes <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "size_bytes must be positive")
	}
	return nil
}
