// Package catalog coordinates medicine rows with their image files.
//
// The database row and the image file are not written atomically. An upload
// is staged under a temporary name first, the row is written in one
// transaction with a reference derived from its id, and the staged file is
// moved into place only after that transaction commits. A failed transaction
// discards the staged file; a failed move after commit leaves a row pointing
// at a missing file, which is logged.
package catalog

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"apotek/m/domain"
	"apotek/m/internal/imagestore"
	"apotek/m/internal/store"
)

// Image is an uploaded image file.
type Image struct {
	Filename string
	Body     io.Reader
}

type Service struct {
	medicines *store.Medicines
	images    *imagestore.Store
	log       zerolog.Logger
}

func New(medicines *store.Medicines, images *imagestore.Store, log zerolog.Logger) *Service {
	return &Service{medicines: medicines, images: images, log: log.With().Str("component", "catalog").Logger()}
}

func (s *Service) Create(ctx context.Context, in store.NewMedicine, img *Image) (domain.Medicine, error) {
	if img == nil {
		return domain.Medicine{}, &store.ValidationError{Field: "image", Message: "is required"}
	}
	staged, err := s.stage(img)
	if err != nil {
		return domain.Medicine{}, err
	}

	m, err := s.medicines.Create(ctx, in, s.namer(staged.Ext))
	if err != nil {
		s.discard(staged)
		return domain.Medicine{}, err
	}
	s.promote(staged, m.ID)
	return m, nil
}

// Update applies changes and replaces the image only when img is non-nil.
func (s *Service) Update(ctx context.Context, id int64, changes store.MedicineChanges, img *Image) (domain.Medicine, error) {
	if img == nil {
		m, _, err := s.medicines.Update(ctx, id, changes, nil)
		return m, err
	}

	staged, err := s.stage(img)
	if err != nil {
		return domain.Medicine{}, err
	}
	m, previous, err := s.medicines.Update(ctx, id, changes, s.namer(staged.Ext))
	if err != nil {
		s.discard(staged)
		return domain.Medicine{}, err
	}
	s.promote(staged, m.ID)
	if previous.Image != "" && previous.Image != m.Image {
		if err := s.images.Remove(previous.Image); err != nil {
			s.log.Warn().Err(err).Int64("medicine_id", id).Str("image", previous.Image).Msg("unable to remove replaced image")
		}
	}
	return m, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	m, err := s.medicines.Delete(ctx, id)
	if err != nil {
		return err
	}
	if err := s.images.Remove(m.Image); err != nil {
		s.log.Warn().Err(err).Int64("medicine_id", id).Str("image", m.Image).Msg("unable to remove image of deleted medicine")
	}
	return nil
}

func (s *Service) namer(ext string) store.ImageNamer {
	return func(id int64) string {
		return s.images.URL(imagestore.FileName(id, ext))
	}
}

func (s *Service) stage(img *Image) (*imagestore.Staged, error) {
	staged, err := s.images.Stage(img.Filename, img.Body)
	if errors.Is(err, imagestore.ErrUnsupportedType) {
		return nil, &store.ValidationError{Field: "image", Message: "must be a jpg, jpeg, png, gif or webp file"}
	}
	return staged, err
}

func (s *Service) discard(staged *imagestore.Staged) {
	if err := staged.Discard(); err != nil {
		s.log.Warn().Err(err).Msg("unable to discard staged image")
	}
}

func (s *Service) promote(staged *imagestore.Staged, id int64) {
	if err := staged.Promote(imagestore.FileName(id, staged.Ext)); err != nil {
		s.log.Error().Err(err).Int64("medicine_id", id).Msg("medicine saved but its image could not be stored")
	}
}
