package usecase_test

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartUsecase(s *memStore) *usecase.CartUsecase {
	return usecase.NewCartUsecase(memCartItems{s}, memItems{s})
}

func TestCartUsecase_AddLineTwiceIncrementsQuantity(t *testing.T) {
	s := newMemStore()
	it := s.addItem(model.Item{Title: "mug", Price: 500, UserID: 9})
	uc := newCartUsecase(s)
	me := principal(1)

	first, err := uc.AddLine(context.Background(), me, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Quantity)

	second, err := uc.AddLine(context.Background(), me, it.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.Quantity)
	assert.Equal(t, "mug", second.Item.Title)
	assert.Len(t, s.linesOf(1), 1)
}

func TestCartUsecase_AddLine_Errors(t *testing.T) {
	s := newMemStore()
	it := s.addItem(model.Item{Title: "mug", Price: 500, UserID: 9})
	uc := newCartUsecase(s)

	_, err := uc.AddLine(context.Background(), nil, it.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	_, err = uc.AddLine(context.Background(), principal(1), 12345)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = uc.AddLine(context.Background(), principal(1), 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	assert.Empty(t, s.linesOf(1))
}

func TestCartUsecase_RemoveLine(t *testing.T) {
	s := newMemStore()
	it := s.addItem(model.Item{Title: "mug", Price: 500, UserID: 9})
	mine := s.addLine(1, it.ID, 3)
	uc := newCartUsecase(s)

	removed, err := uc.RemoveLine(context.Background(), principal(1), mine.ID)
	require.NoError(t, err)

	assert.Equal(t, mine.ID, removed.ID)
	assert.Equal(t, int64(3), removed.Quantity)
	assert.Empty(t, s.linesOf(1))
}

func TestCartUsecase_RemoveLine_NotOwnerIsForbidden(t *testing.T) {
	s := newMemStore()
	it := s.addItem(model.Item{Title: "mug", Price: 500, UserID: 9})
	theirs := s.addLine(2, it.ID, 1)
	uc := newCartUsecase(s)

	// ADMINでも他人のカートは触れない
	_, err := uc.RemoveLine(context.Background(), principal(1, model.RoleAdmin), theirs.ID)

	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.Len(t, s.linesOf(2), 1)
}

func TestCartUsecase_RemoveLine_Missing(t *testing.T) {
	uc := newCartUsecase(newMemStore())

	_, err := uc.RemoveLine(context.Background(), principal(1), 777)

	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCartUsecase_ListLines(t *testing.T) {
	s := newMemStore()
	a := s.addItem(model.Item{Title: "mug", Price: 500, UserID: 9})
	b := s.addItem(model.Item{Title: "shirt", Price: 1000, UserID: 9})
	s.addLine(1, a.ID, 2)
	s.addLine(1, b.ID, 1)
	s.addLine(2, a.ID, 5)
	uc := newCartUsecase(s)

	lines, err := uc.ListLines(context.Background(), principal(1))
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Equal(t, "mug", lines[0].Item.Title)
	assert.Equal(t, int64(2), lines[0].Quantity)
	assert.Equal(t, int64(1000), lines[1].Item.Price)

	_, err = uc.ListLines(context.Background(), nil)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}
