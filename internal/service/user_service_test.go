package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	"github.com/alillje/lillje-consulting-auth-service/internal/repository"
	appErrors "github.com/alillje/lillje-consulting-auth-service/pkg/errors"
)

type userRepoStub struct {
	users     map[string]*models.User
	createErr error
	listing   []models.User
	total     int
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if s.users == nil {
		s.users = make(map[string]*models.User)
	}
	s.users[user.ID] = user
	return nil
}

func (s *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, repository.ErrRecordNotFound
}

func (s *userRepoStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return s.listing, s.total, nil
}

func TestUserServiceRegister(t *testing.T) {
	repo := &userRepoStub{}
	service := NewUserService(repo, NewBcryptHasher(4), nil, validator.New(), nil)

	user, err := service.Register(context.Background(), models.RegisterRequest{
		Email:    "anna@lillje.se",
		Password: "hunter22!",
		Company:  "Lillje Consulting",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "anna@lillje.se", user.Email)
	assert.False(t, user.Admin)
	assert.NotEqual(t, "hunter22!", user.PasswordHash)
	assert.NotEmpty(t, user.PasswordHash)

	stored, ok := repo.users[user.ID]
	require.True(t, ok)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash)
}

func TestUserServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &userRepoStub{createErr: repository.ErrDuplicate}
	service := NewUserService(repo, NewBcryptHasher(4), nil, validator.New(), nil)

	_, err := service.Register(context.Background(), models.RegisterRequest{
		Email:    "anna@lillje.se",
		Password: "hunter22!",
		Company:  "Lillje Consulting",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceRegisterShortPassword(t *testing.T) {
	service := NewUserService(&userRepoStub{}, NewBcryptHasher(4), nil, validator.New(), nil)

	_, err := service.Register(context.Background(), models.RegisterRequest{
		Email:    "anna@lillje.se",
		Password: "short",
		Company:  "Lillje Consulting",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceGet(t *testing.T) {
	repo := &userRepoStub{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "anna@lillje.se"},
	}}
	service := NewUserService(repo, nil, nil, validator.New(), nil)

	user, err := service.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "anna@lillje.se", user.Email)

	_, err = service.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceList(t *testing.T) {
	repo := &userRepoStub{
		listing: []models.User{{ID: "u1"}, {ID: "u2"}},
		total:   12,
	}
	service := NewUserService(repo, nil, nil, validator.New(), nil)

	users, pagination, err := service.List(context.Background(), models.UserFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 2, pagination.PageSize)
	assert.Equal(t, 12, pagination.TotalCount)
}
