package inquiry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/privacy"
	"gatekeeper/pkg/platform/validation"
	"gatekeeper/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

// Store persists inquiries. Get returns a CodeNotFound domain error for
// unknown IDs.
type Store interface {
	Create(ctx context.Context, inq Inquiry) error
	Get(ctx context.Context, id uuid.UUID) (*Inquiry, error)
	List(ctx context.Context, f Filter) (Page, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("inquiry store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}, nil
}

// Submit records a new inquiry from the public form.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*Inquiry, error) {
	// Callers outside the composer skip schema validation; the store columns
	// still need bounding.
	if err := errors.Join(
		validation.CheckStringLength("name", req.Name, validation.MaxNameLength),
		validation.CheckStringLength("email", req.Email, validation.MaxEmailLength),
		validation.CheckStringLength("message", req.Message, validation.MaxMessageLength),
	); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	inq := Inquiry{
		ID:        uuid.New(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Company:   req.Company,
		VehicleID: req.VehicleID,
		Message:   req.Message,
		Status:    StatusNew,
		SourceIP:  privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		CreatedAt: requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.Create(ctx, inq); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "inquiry submitted",
		"inquiry_id", inq.ID,
		"vehicle_id", inq.VehicleID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &inq, nil
}

func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	return s.store.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, rawID string) (*Inquiry, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid inquiry id")
	}
	return s.store.Get(ctx, id)
}
